package main

import (
	"io"
	"net/url"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"meteorite-explorer/internal/config"
)

const redacted = "xxxxx"

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the configuration after defaults and environment overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg)
		},
	})
	return cmd
}

// printConfig writes cfg as YAML with credentials masked.
func printConfig(w io.Writer, cfg *config.Config) error {
	masked := *cfg
	if masked.Cache.Redis.Password != "" {
		masked.Cache.Redis.Password = redacted
	}
	if u, err := url.Parse(masked.Events.RabbitMQ.URL); err == nil && u.User != nil {
		masked.Events.RabbitMQ.URL = u.Redacted()
	}
	if masked.Storage.Driver == "mysql" {
		if dsn, err := mysql.ParseDSN(masked.Storage.DSN); err == nil && dsn.Passwd != "" {
			dsn.Passwd = redacted
			masked.Storage.DSN = dsn.FormatDSN()
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(masked); err != nil {
		return err
	}
	return enc.Close()
}
