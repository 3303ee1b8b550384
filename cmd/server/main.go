package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"rentcal/internal/api"
	"rentcal/internal/audit"
	"rentcal/internal/cache"
	"rentcal/internal/config"
	"rentcal/internal/database"
	"rentcal/internal/events"
	"rentcal/internal/metrics"
	"rentcal/internal/selection"
	"rentcal/internal/service"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv(config.EnvConfigPath))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.App.LogLevel); err == nil && cfg.App.LogLevel != "" {
		logger = logger.Level(lvl)
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}
	mapCache := cache.NewBlockedMapCache(rdb, cfg.CacheTTL(), &logger)
	locker := cache.NewLocker(rdb, cfg.LockTTL())

	// Resources come from YAML; every change is synced into the database.
	watcher := config.NewResourceWatcher(cfg.Resources.Path, cfg.ResourcesReloadInterval(),
		func(ctx context.Context, rc *config.ResourcesConfig) error {
			syncCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := db.SyncResourcesFromConfig(syncCtx, rc); err != nil {
				return err
			}
			for _, r := range rc.Resources {
				if err := mapCache.Invalidate(syncCtx, r.ID); err != nil {
					logger.Warn().Err(err).Str("resource_id", r.ID).Msg("cache invalidate failed")
				}
			}
			logger.Info().Int("resources", len(rc.Resources)).Msg("resources synced")
			return nil
		}, &logger)
	if err := watcher.Load(ctx); err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Resources.Path).Msg("failed to load resources config")
	}
	go watcher.Run(ctx)

	bus := events.NewEventBus()
	if len(cfg.Kafka.Brokers) > 0 {
		forwarder := events.NewKafkaForwarder(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), 0, &logger)
		forwarder.Attach(bus, events.ReservationCreated, events.ReservationCanceled, events.ReservationConflict)
		go forwarder.Run(ctx)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka forwarding enabled")
	}

	svc := service.NewBookingService(
		db,
		mapCache,
		locker,
		bus,
		selection.NewSessionStore(cfg.SessionTimeout()),
		service.Options{
			HorizonMonths:    cfg.Availability.HorizonMonths,
			MaxLookaheadDays: cfg.Availability.MaxLookaheadDays,
		},
		&logger,
	)
	go svc.CleanupSessions(ctx, time.Minute)

	backups := database.NewBackupService(db, cfg.Backup, &logger)
	go backups.Start(ctx)

	archive := audit.NewService(cfg.Audit, db, nil, &logger)
	go archive.Start(ctx)

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("api disabled; only health, metrics and background jobs are running")
		<-ctx.Done()
		return
	}

	apiServer := api.NewHTTPServer(api.Options{
		Port:      cfg.API.Port,
		APIKey:    cfg.API.APIKey,
		RateLimit: cfg.API.RateLimit,
		RateBurst: cfg.API.RateBurst,
	}, svc, &logger)
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = apiServer.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("app", cfg.App.Name).Str("env", cfg.App.Environment).Msg("rentcal started")
	if err := apiServer.Start(); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, "health", port, mux, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	serve(ctx, "metrics", port, mux, logger)
}

func serve(ctx context.Context, name string, port int, h http.Handler, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
