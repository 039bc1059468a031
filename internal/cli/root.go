package cli

import (
	"io"
	"os"

	"github.com/google/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	port       string
	configPath string
	verbose    bool
)

// Execute runs the CLI.
func Execute() error {
	// A missing .env file is fine; real deployments set the environment directly.
	_ = godotenv.Load()
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envPort := os.Getenv("PORT")
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	var lg *logger.Logger
	cmd := &cobra.Command{
		Use:           "quiz-battle",
		Short:         "Live timed quiz contests with a server-authoritative clock",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			lg = logger.Init("quiz-battle", true, false, io.Discard)
			if verbose {
				logger.SetLevel(1)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if lg != nil {
				lg.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on (overrides server.port)")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "log per-stream phase transitions")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewSweepCmd(&configPath))
	return cmd
}
