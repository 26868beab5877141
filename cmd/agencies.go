package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var agenciesCode string

var agenciesCmd = &cobra.Command{
	Use:   "agencies",
	Short: "Inspect and administer the taxonomy-to-agency index",
}

var agenciesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agencies, optionally ranked for an HTS code",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer w.Flush() //nolint:errcheck

		if agenciesCode != "" {
			ranked, err := env.Agencies.For(ctx, agenciesCode, 0)
			if err != nil {
				return eris.Wrap(err, "agencies for code")
			}
			fmt.Fprintln(w, "AGENCY\tNAME\tMAPPING PRIORITY")
			for _, ag := range ranked {
				fmt.Fprintf(w, "%s\t%s\t%d\n", ag.ShortName, ag.Name, ag.MappingPriority)
			}
			return nil
		}

		all, err := env.Agencies.All(ctx)
		if err != nil {
			return eris.Wrap(err, "list agencies")
		}
		fmt.Fprintln(w, "ID\tAGENCY\tPRIORITY\tPREFIXES")
		for _, ag := range all {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", ag.ID, ag.ShortName, ag.Priority, strings.Join(ag.Prefixes, ","))
		}
		return nil
	},
}

var agenciesPriorityCmd = &cobra.Command{
	Use:   "set-priority <agency-id> <priority>",
	Short: "Adjust an agency's priority and rewrite its mappings",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		priority, err := strconv.Atoi(args[1])
		if err != nil {
			return eris.Wrapf(err, "parse priority %q", args[1])
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Agencies.SetPriority(ctx, args[0], priority); err != nil {
			return err
		}
		fmt.Printf("Agency %s priority set to %d.\n", args[0], priority)
		return nil
	},
}

func init() {
	agenciesListCmd.Flags().StringVar(&agenciesCode, "code", "", "rank agencies for this HTS code")
	agenciesCmd.AddCommand(agenciesListCmd)
	agenciesCmd.AddCommand(agenciesPriorityCmd)
	rootCmd.AddCommand(agenciesCmd)
}
