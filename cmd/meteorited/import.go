package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"meteorite-explorer/internal/config"
	"meteorite-explorer/internal/ingest"
	"meteorite-explorer/pkg/logger"
)

func newImportCmd(root *rootOptions) *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "import [csv-file]",
		Short: "Load a meteorite CSV export into the configured store",
		Long: `Load a meteorite CSV export into the configured store. Records are
upserted by id, so importing the same file twice is harmless. Without an
argument the file named by ingest.path is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			path := cfg.Ingest.Path
			if len(args) == 1 {
				path = args[0]
			}
			if batchSize > 0 {
				cfg.Ingest.BatchSize = batchSize
			}
			return runImport(cmd.Context(), cfg, path, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per store transaction (default ingest.batch_size)")
	return cmd
}

func runImport(ctx context.Context, cfg *config.Config, path string, out io.Writer) error {
	if path == "" {
		return errors.New("no CSV file given and ingest.path is empty")
	}
	if cfg.Storage.Driver == "memory" {
		logger.Named("meteorited").Warn("importing into the memory store; records are lost when the command exits")
	}
	comps, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.service.Close()

	importer := ingest.NewImporter(comps.service, ingest.WithBatchSize(cfg.Ingest.BatchSize))
	report, err := importer.ImportFile(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "imported %d of %d rows from %s, %d skipped\n", report.Imported, report.Rows, report.Origin, report.Skipped)
	if rowErr := report.Err(); rowErr != nil {
		logger.Named("meteorited").Warn("rows skipped", slog.Any("error", rowErr))
		fmt.Fprintln(out, rowErr)
	}
	return nil
}
