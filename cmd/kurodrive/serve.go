package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"kurodrive/internal/activity"
	"kurodrive/internal/auth"
	"kurodrive/internal/blob"
	"kurodrive/internal/blob/localfs"
	"kurodrive/internal/blob/s3"
	"kurodrive/internal/config"
	"kurodrive/internal/handler"
	"kurodrive/internal/logging"
	"kurodrive/internal/metrics"
	"kurodrive/internal/repository"
	"kurodrive/internal/repository/badgerstore"
	"kurodrive/internal/repository/postgres"
	"kurodrive/internal/service"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger, !skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply Postgres migrations on start")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger logging.Logger, migrate bool) error {
	m, metricsHandler := setupMetrics(cfg.Metrics)

	store, err := openStore(ctx, cfg, logger, migrate)
	if err != nil {
		return err
	}
	defer store.Close()

	blobs, err := openBlobs(ctx, cfg.Blob, logger)
	if err != nil {
		return err
	}

	recorder := activity.NewAsyncRecorder(activity.NewStoreSink(store), cfg.Activity.Buffer, logger, m)

	quota := service.NewStorageQuotaService(store, cfg.Quota.DefaultLimit, logger, m)
	cleaner := service.NewBlobCleaner(blobs, service.BlobPolicy(cfg.Blob.Policy), cfg.Blob.Workers, logger, m)
	shares := service.NewShareService(store, blobs, recorder, m, cfg.Share.BcryptCost, logger)
	folders := service.NewFolderService(store, quota, cleaner, recorder, logger)
	folders.SetCascadeBatch(cfg.Metadata.CascadeBatch)
	svc := handler.Services{
		Files:    service.NewFileService(store, blobs, quota, cleaner, recorder, cfg.Search.MaxResults, logger),
		Folders:  folders,
		Shares:   shares,
		Quota:    quota,
		Activity: service.NewActivityService(store),
		Admin:    service.NewAdminService(store, quota, folders, recorder, logger),
	}

	authMW := auth.NewMiddleware(auth.NewTokens(cfg.Auth), quota, handler.ErrorWriter(logger), logger)
	router := handler.NewRouter(svc, authMW, handler.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadSize:  cfg.Server.MaxUploadSize,
		Metrics:        metricsHandler,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(gctx, "http server started", "addr", cfg.Server.Addr,
			"metadata", cfg.Metadata.Type, "blob", cfg.Blob.Type, "blob_policy", cleaner.Policy())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info(shutdownCtx, "shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		purgeExpired(gctx, shares, cfg.Share.PurgeInterval, logger)
		return nil
	})

	err = g.Wait()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if cerr := recorder.Close(closeCtx); cerr != nil {
		logger.Warn(closeCtx, "activity log not fully flushed", "error", cerr)
	}
	return err
}

// purgeExpired периодически удаляет истёкшие ссылки до отмены ctx.
func purgeExpired(ctx context.Context, shares *service.ShareService, every time.Duration, logger logging.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := shares.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
				logger.Error(ctx, "share janitor failed", "error", err)
			}
		}
	}
}

func setupMetrics(cfg config.MetricsConfig) (metrics.Recorder, http.Handler) {
	if !cfg.Enabled {
		return metrics.NewNoop(), nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewPrometheus(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func openStore(ctx context.Context, cfg *config.Config, logger logging.Logger, migrate bool) (repository.Store, error) {
	switch cfg.Metadata.Type {
	case "badger":
		opts := []badgerstore.Option{badgerstore.WithSearchScanLimit(cfg.Metadata.Badger.SearchScanLimit)}
		if cfg.Metadata.Badger.Path == "" {
			logger.Warn(ctx, "badger path is empty, metadata is kept in memory")
			return badgerstore.OpenInMemory(logger, opts...)
		}
		return badgerstore.Open(cfg.Metadata.Badger.Path, logger, opts...)
	case "postgres":
		if migrate {
			if err := migrateUp(cfg.Database.URL()); err != nil {
				return nil, err
			}
		}
		db, err := connectWithRetry(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		return postgres.NewStore(db, logger), nil
	}
	return nil, fmt.Errorf("unknown metadata type %q", cfg.Metadata.Type)
}

func migrateUp(url string) error {
	m, err := postgres.NewMigrator(url)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

func connectWithRetry(ctx context.Context, cfg config.DatabaseConfig, logger logging.Logger) (*sqlx.DB, error) {
	var err error
	for attempt := 1; attempt <= cfg.ConnectAttempts; attempt++ {
		var db *sqlx.DB
		if db, err = sqlx.ConnectContext(ctx, "postgres", cfg.DSN()); err == nil {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
			db.SetMaxIdleConns(cfg.MaxIdleConns)
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
			return db, nil
		}

		logger.Warn(ctx, "failed to connect to database",
			"attempt", attempt, "max_attempts", cfg.ConnectAttempts, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.ConnectDelay):
		}
	}
	return nil, fmt.Errorf("failed to connect after %d attempts: %w", cfg.ConnectAttempts, err)
}

func openBlobs(ctx context.Context, cfg config.BlobConfig, logger logging.Logger) (blob.Store, error) {
	switch cfg.Type {
	case "s3":
		return s3.NewClient(ctx, &cfg.S3, logger)
	case "localfs":
		return localfs.NewOS(cfg.LocalFS.Root)
	}
	return nil, fmt.Errorf("unknown blob store type %q", cfg.Type)
}
