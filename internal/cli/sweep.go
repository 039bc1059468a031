package cli

import (
	"context"

	"github.com/google/logger"
	"github.com/spf13/cobra"

	"quiz-battle/internal/app"
	"quiz-battle/internal/config"
)

// NewSweepCmd runs one lifecycle sweep and exits. It promotes and finalizes contests
// left behind while no server was running.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run a single lifecycle sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), *configPath)
		},
	}
}

func runSweep(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		logger.Warning("sweep without postgres only sees the in-memory demo contest")
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	scheduler := app.NewScheduler(st.records, st.ranking, cfg.SweepInterval(), cfg.WaitingLead()).WithCache(st.cache)
	if err := scheduler.Sweep(ctx); err != nil {
		return err
	}
	logger.Info("sweep complete")
	return nil
}
