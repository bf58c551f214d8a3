package cli

import (
	"github.com/spf13/cobra"

	"github.com/mintline/edition_layer/internal/config"
	"github.com/mintline/edition_layer/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string
}

// NewRootCommand creates the root command for marketd.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "marketd",
		Short:         "Edition inventory and allocation engine",
		Long:          "marketd serves the edition inventory API and manages its schema and seed data.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the environment is decoded")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	return cmd
}

func (o *RootOptions) load() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(o.EnvFile)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New("marketd", logger.LoggingConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, log, nil
}
