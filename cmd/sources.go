package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/lawgenie/hscompass/internal/model"
)

var sourcesCode string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect and administer the source registry",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources, optionally ranked for an HTS code",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var sources []model.Source
		if sourcesCode != "" {
			sources, err = env.Sources.For(ctx, sourcesCode)
		} else {
			sources, err = env.Store.ListSources(ctx)
		}
		if err != nil {
			return eris.Wrap(err, "list sources")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer w.Flush() //nolint:errcheck
		fmt.Fprintln(w, "NAME\tAGENCY\tRATE\tFAILURES\tACTIVE")
		for _, src := range sources {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%t\n",
				src.Name, src.Agency, src.SuccessRate, src.FailureCount, src.Active)
		}
		return nil
	},
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add <definition.json>",
	Short: "Register or update a source from a JSON definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}
		var src model.Source
		if err := json.Unmarshal(data, &src); err != nil {
			return eris.Wrap(err, "parse source definition")
		}
		src.Active = true

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Sources.Register(ctx, src); err != nil {
			return err
		}
		fmt.Printf("Source %s registered.\n", src.Name)
		return nil
	},
}

var sourcesDeactivateCmd = &cobra.Command{
	Use:   "deactivate <name>",
	Short: "Deactivate a source without deleting its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Sources.Deactivate(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Source %s deactivated.\n", args[0])
		return nil
	},
}

func init() {
	sourcesListCmd.Flags().StringVar(&sourcesCode, "code", "", "rank sources for this HTS code")
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesAddCmd)
	sourcesCmd.AddCommand(sourcesDeactivateCmd)
	rootCmd.AddCommand(sourcesCmd)
}
