package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lawgenie/hscompass/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "hscompass",
	Short: "Adaptive multi-agency tariff resolution engine",
	Long:  "Classifies products against the HTS taxonomy, maps codes to governing agencies, queries their data sources with reliability tracking, and aggregates regulatory requirements into a confidence-scored report.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
