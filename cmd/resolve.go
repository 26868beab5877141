package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	resolveCode    string
	resolveProduct string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve regulatory requirements for a product or HTS code",
	RunE: func(cmd *cobra.Command, args []string) error {
		if resolveCode == "" && resolveProduct == "" {
			return eris.New("either --code or --product is required")
		}
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report := env.Orch.Resolve(ctx, resolveCode, resolveProduct)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return eris.Wrap(err, "encode report")
		}
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveCode, "code", "", "HTS code (classified from --product when omitted)")
	resolveCmd.Flags().StringVar(&resolveProduct, "product", "", "product description")
	rootCmd.AddCommand(resolveCmd)
}
