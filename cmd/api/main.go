package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tourcompanion/api/internal/app"
	"tourcompanion/api/internal/authpw"
	"tourcompanion/api/internal/config"
	"tourcompanion/api/internal/email"
	"tourcompanion/api/internal/export"
	"tourcompanion/api/internal/logging"
	"tourcompanion/api/internal/manifest"
	"tourcompanion/api/internal/realtime"
	"tourcompanion/api/internal/search"
	"tourcompanion/api/internal/session"
	"tourcompanion/api/internal/storage"
	"tourcompanion/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat).With(zap.String("service", "tourcompanion-api"))
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpenConns: cfg.DBMaxConns})
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, logger); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	pg := store.NewPostgresStore(db)

	redisStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisStore.Close()
	rdb := redisStore.Client()
	sessions := session.NewTiered(redisStore, pg, logger)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, logger)

	deps := app.Deps{
		Store:    pg,
		Sessions: sessions,
		Auth:     authpw.NewService(pg, 0),
		Mail: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
		Search:  searchService,
		Reports: export.NewService(pg, nil),
		Logger:  logger,
		Probes: []app.Probe{{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}}},
	}

	if assets, err := storage.New(storage.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}, logger); err != nil {
		logger.Warn("asset storage disabled", zap.Error(err))
	} else if err := assets.EnsureBucket(ctx); err != nil {
		logger.Warn("asset storage disabled", zap.String("bucket", cfg.MinioBucket), zap.Error(err))
	} else {
		deps.Assets = assets
	}

	service := app.New(cfg, deps)

	hub := realtime.NewHub(rdb, realtime.WithLogger(logger))
	broker := realtime.NewBroker(pg, rdb, realtime.WithLogger(logger))
	listener := store.NewListener(cfg.DatabaseURL, store.ChangesChannel, logger)

	httpServer := app.NewHTTPServer(service, app.HTTPOptions{
		CORSOrigin:  cfg.CORSOrigin,
		IngestToken: cfg.IngestToken,
		ExposeStack: cfg.IsDevelopment(),
		Logger:      logger,
		Streamer:    realtime.NewStreamer(hub, cfg.RealtimeHeartbeat, logger),
		Manifest:    manifest.NewHandler(pg, logger),
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// No WriteTimeout: realtime streams stay open for the life of the client.
		IdleTimeout: 60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return ignoreCanceled(hub.Run(groupCtx))
	})
	group.Go(func() error {
		return ignoreCanceled(listener.Run(groupCtx, broker.Handle))
	})
	if meiliClient != nil {
		group.Go(func() error {
			reindexWhenHealthy(groupCtx, meiliClient, searchService, logger)
			return nil
		})
	}
	group.Go(func() error {
		logger.Info("TourCompanion API listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// reindexWhenHealthy backfills Meilisearch from Postgres once the index
// reports healthy, giving up after a minute.
func reindexWhenHealthy(ctx context.Context, meili *search.Meili, service *search.Service, logger *zap.Logger) {
	deadline := time.NewTimer(time.Minute)
	defer deadline.Stop()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		if meili.Healthy() {
			service.ReindexAllFromPG(ctx)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			logger.Warn("meilisearch not healthy, skipping reindex")
			return
		case <-ticker.C:
		}
	}
}
