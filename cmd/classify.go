package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var classifyDuty bool

var classifyCmd = &cobra.Command{
	Use:   "classify <product description>",
	Short: "Rank HTS candidate codes for a product description",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		product := strings.Join(args, " ")
		candidates := env.Orch.Classify(ctx, product)
		if len(candidates) == 0 {
			fmt.Fprintln(os.Stderr, "No classification possible for this product text.")
			return nil
		}

		out := make([]map[string]any, 0, len(candidates))
		for _, cand := range candidates {
			entry := map[string]any{
				"code":        cand.Code,
				"description": cand.Description,
				"score":       cand.Score,
				"category":    cand.Category,
				"reasoning":   cand.Reasoning,
			}
			if classifyDuty {
				entry["tariff"] = env.Orch.TariffEstimate(cand.Code)
			}
			out = append(out, entry)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return eris.Wrap(err, "encode candidates")
		}
		return nil
	},
}

func init() {
	classifyCmd.Flags().BoolVar(&classifyDuty, "duty", false, "include duty-rate estimates")
	rootCmd.AddCommand(classifyCmd)
}
