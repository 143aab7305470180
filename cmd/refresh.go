package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-check active properties against the provider",
	Long:  "Scans active properties oldest-checked first, re-fetches their listings, retires sold/delisted/disqualified properties, and merges live price and status changes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Refresher.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "refresh run")
		}

		zap.L().Info("refresh finished",
			zap.Int("scanned", res.Scanned),
			zap.Int("refreshed", res.Refreshed),
			zap.Int("deactivated", res.Deactivated),
			zap.Duration("duration", res.Duration),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
