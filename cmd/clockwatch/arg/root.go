package arg

import (
	"fmt"
	"os"

	"tn-work/internal/agentconfig"
	"tn-work/internal/clockclient"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "clockwatch",
	Short: "clockwatch is the desktop agent for attendance clocking",
	Long: `clockwatch clocks you in and out against the attendance API and, with
"clockwatch run", closes your open session after a period of inactivity.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", agentconfig.DefaultPath(), "path to the agent config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	return cfg.Build()
}

// setup loads the agent config and builds a client for it.
func setup() (agentconfig.Config, *clockclient.Client, *zap.Logger, error) {
	logger, err := newLogger()
	if err != nil {
		return agentconfig.Config{}, nil, nil, err
	}
	zap.ReplaceGlobals(logger)

	cfg, err := agentconfig.Load(configPath)
	if err != nil {
		return agentconfig.Config{}, nil, nil, err
	}

	client := clockclient.New(cfg.ServerURL, cfg.Token,
		clockclient.WithBeaconTimeout(cfg.BeaconTimeout.Duration),
		clockclient.WithLogger(logger),
	)
	return cfg, client, logger, nil
}
