package main

import (
	"github.com/spf13/cobra"

	"meteorite-explorer/internal/config"
	"meteorite-explorer/pkg/logger"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "meteorited",
		Short: "Meteorite landings explorer",
		Long: `meteorited serves the meteorite landings dataset over a REST API and a
server rendered explorer with list, detail and dashboard pages.

Configuration is read from --config, or from the file named by
METEORITE_CONFIG, with METEORITE_* environment variables layered on top.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a JSON or YAML config file")

	cmd.AddCommand(
		newServeCmd(opts),
		newImportCmd(opts),
		newConfigCmd(opts),
		newQueryCmd(),
	)
	return cmd
}

// load reads the configuration and initialises the global loggers.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
			MaxAgeDays: cfg.Log.Audit.MaxAgeDays,
		},
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}
