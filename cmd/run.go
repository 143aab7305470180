package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ownerfi/dealflow/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one ingestion pass over all configured searches",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if len(cfg.Provider.Searches) == 0 {
			return eris.New("no provider searches configured")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sum := env.Pipeline.Run(ctx)

		zap.L().Info("ingestion finished",
			zap.String("run_id", sum.RunID),
			zap.String("status", string(sum.Status)),
			zap.Int("found", sum.Metrics.Found),
			zap.Int("persisted", sum.Metrics.Persisted),
			zap.Duration("duration", sum.Duration),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			return eris.Wrap(err, "encode summary")
		}

		if sum.Status == model.RunStatusFailed {
			return eris.Errorf("run %s failed: %s", sum.RunID, sum.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
