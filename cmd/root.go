package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ownerfi/dealflow/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "dealflow",
	Short: "Owner-finance listing ingestion pipeline",
	Long:  "Pulls saved searches from the listing provider, classifies owner-finance and cash deals, computes investment metrics, persists to the property store, and fans out to the search index, CRM relay, and buyer matching.",
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
