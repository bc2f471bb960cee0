package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"meteorite-explorer/internal/api"
	"meteorite-explorer/internal/config"
	"meteorite-explorer/internal/events"
	"meteorite-explorer/internal/ingest"
	"meteorite-explorer/internal/observability/metrics"
	"meteorite-explorer/internal/web"
	"meteorite-explorer/pkg/logger"
	sdk "meteorite-explorer/sdk/go/meteorite"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API and the explorer pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Named("meteorited")

	comps, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	service := comps.service
	defer func() {
		if err := service.Close(); err != nil {
			log.Warn("close components", slog.Any("error", err))
		}
	}()

	importer := ingest.NewImporter(service, ingest.WithBatchSize(cfg.Ingest.BatchSize))
	if cfg.Ingest.OnStartup && cfg.Ingest.Path != "" {
		ran, report, err := importer.ImportIfEmpty(ctx, cfg.Ingest.Path)
		switch {
		case err != nil:
			log.Error("startup import failed", slog.String("path", cfg.Ingest.Path), slog.Any("error", err))
		case ran:
			log.Info("startup import finished",
				slog.String("path", report.Origin),
				slog.Int("imported", report.Imported),
				slog.Int("skipped", report.Skipped),
			)
		}
	}

	serverOpts := []api.Option{
		api.WithCORSOrigins(cfg.Server.CORSAllowedOrigins...),
		api.WithTimeouts(cfg.Server.ReadHeaderTimeout(), cfg.Server.ShutdownTimeout()),
	}
	if cfg.Web.Enabled {
		pages, err := newPages(cfg.Web, service)
		if err != nil {
			return err
		}
		serverOpts = append(serverOpts, api.WithMount(pages))
	}
	if cfg.Server.MetricsAddress != "" {
		serverOpts = append(serverOpts, api.WithoutMetricsEndpoint())
	}
	server := api.NewServer(cfg.Server.Address, service, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		err := comps.bus.Subscribe(gctx, service.HandleEvent)
		if errors.Is(err, context.Canceled) || errors.Is(err, events.ErrClosed) {
			return nil
		}
		return err
	})
	if cfg.Ingest.Watch {
		watcher := ingest.NewWatcher(importer, cfg.Ingest.Path, cfg.Ingest.Debounce())
		watcher.OnImport(func(report ingest.Report, err error) {
			if err == nil {
				log.Info("dataset re-imported", slog.Int("imported", report.Imported), slog.Int("skipped", report.Skipped))
			}
		})
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}
	if cfg.Server.MetricsAddress != "" {
		g.Go(func() error {
			return metrics.StartServer(gctx, cfg.Server.MetricsAddress)
		})
	}

	log.Info("meteorited started",
		slog.String("address", cfg.Server.Address),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("cache", cfg.Cache.Driver),
		slog.String("events", cfg.Events.Driver),
		slog.String("instance", service.InstanceID()),
	)
	err = g.Wait()
	log.Info("meteorited stopped")
	return err
}

// newPages builds the explorer pages. They read the local service unless
// web.api_base_url points them at another instance.
func newPages(cfg config.WebConfig, local web.Source) (*web.Handler, error) {
	source := local
	if cfg.APIBaseURL != "" {
		client, err := sdk.NewClient(cfg.APIBaseURL, nil)
		if err != nil {
			return nil, err
		}
		source = web.NewRemoteSource(client)
	}
	return web.New(source, web.WithPageSize(cfg.PageSize), web.WithTileURL(cfg.TileURL))
}
