package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/homestead/pkg/api"
	"github.com/platinummonkey/homestead/pkg/async"
	"github.com/platinummonkey/homestead/pkg/audit"
	"github.com/platinummonkey/homestead/pkg/auth"
	"github.com/platinummonkey/homestead/pkg/authz"
	"github.com/platinummonkey/homestead/pkg/config"
	"github.com/platinummonkey/homestead/pkg/httputil"
	"github.com/platinummonkey/homestead/pkg/invitations"
	"github.com/platinummonkey/homestead/pkg/maintenance"
	"github.com/platinummonkey/homestead/pkg/middleware"
	"github.com/platinummonkey/homestead/pkg/notify"
	"github.com/platinummonkey/homestead/pkg/observability"
	"github.com/platinummonkey/homestead/pkg/rbac"
	"github.com/platinummonkey/homestead/pkg/sessions"
	"github.com/platinummonkey/homestead/pkg/storage"
	"github.com/platinummonkey/homestead/pkg/storage/postgres"
	"github.com/platinummonkey/homestead/pkg/tenants"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configFile := flag.String("config", "", "Path to a YAML config file (overrides "+config.EnvConfigFile+")")
	migrateOnly := flag.Bool("migrate-only", false, "Apply database migrations and exit")
	flag.Parse()

	boot := setupLogger(os.Getenv("HOMESTEAD_LOG_LEVEL"))
	boot.Infof("Starting Homestead %s", version)

	if *configFile != "" {
		if err := os.Setenv(config.EnvConfigFile, *configFile); err != nil {
			boot.Fatalf("Failed to set config file: %v", err)
		}
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		boot.Fatalf("Failed to load configuration: %v", err)
	}

	if err := run(context.Background(), cfg, boot, *migrateOnly); err != nil {
		boot.Fatalf("Homestead exited: %v", err)
	}
	boot.Info("Homestead stopped")
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logrusLevel(logLevel))
	return logger
}

func logrusLevel(name string) logrus.Level {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func run(ctx context.Context, cfg *config.Config, boot *logrus.Logger, migrateOnly bool) (err error) {
	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	db, err := postgres.Connect(ctx, cfg.Storage())
	if err != nil {
		return err
	}
	if cfg.Database.RunMigrations || migrateOnly {
		if err := storage.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return err
		}
		boot.Info("Database migrations applied")
	}
	if migrateOnly {
		return db.Close()
	}

	// Releases run in reverse registration order, so servers registered last stop first
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	defer func() {
		if err != nil {
			_ = shutdown.Shutdown(context.Background())
		}
	}()
	cleanup := shutdown.Register
	cleanup("postgres", func(context.Context) error { return db.Close() })

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return err
	}
	cleanup("opentelemetry", providers.Shutdown)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	if providers != nil {
		otelMetrics, err := observability.NewOTelMetrics(otel.Meter("github.com/platinummonkey/homestead"))
		if err != nil {
			return err
		}
		metrics.WithOTel(otelMetrics)
	}

	var redisClient *redis.Client
	if cfg.Cache.Backend == config.CacheRedis {
		redisClient, err = postgres.NewRedisClient(ctx, cfg.Storage())
		if err != nil {
			return err
		}
		cleanup("redis", func(context.Context) error { return redisClient.Close() })
	}

	// Permission resolution
	roleStore := rbac.NewStore(db)
	var cache rbac.Cache = rbac.NewMemoryCache(cfg.Cache.Size)
	if redisClient != nil {
		cache = rbac.NewRedisCache(redisClient).WithPrefix(cfg.Cache.RedisPrefix)
	}
	resolver := rbac.NewResolver(roleStore,
		rbac.WithCache(cache),
		rbac.WithTTL(cfg.Cache.TTL),
		rbac.WithLogger(logger),
		rbac.WithMetrics(metrics),
	)
	roles := rbac.NewService(roleStore, resolver)
	added, err := roles.EnsureCatalog(ctx, rbac.DefaultCatalog())
	if err != nil {
		return err
	}
	if len(added) > 0 {
		boot.Infof("Registered %d permission keys", len(added))
	}

	// Notifications
	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	switch cfg.Notify.Backend {
	case config.NotifyAMQP:
		amqpNotifier, err := notify.DialAMQP(cfg.Notify.AMQPURL)
		if err != nil {
			return err
		}
		notifier = amqpNotifier
		cleanup("amqp", func(context.Context) error { return amqpNotifier.Close() })
	case config.NotifyWebhook:
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret, notify.DefaultRetryConfig())
	}
	dispatcher := notify.NewDispatcher(notifier, async.Config{
		Workers:   cfg.Notify.Workers,
		QueueSize: cfg.Notify.QueueSize,
	}, logger, metrics)
	cleanup("notifications", dispatcher.Shutdown)

	// Core services
	signer := auth.NewAccessTokenSigner(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	sessionService := sessions.NewService(db, signer, dispatcher, sessions.Config{
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
		BcryptCost: cfg.Auth.BcryptCost,
	}, logger, metrics)
	tenantService := tenants.NewService(db, roleStore, sessionService, resolver, logger, metrics)
	invitationService := invitations.NewService(db, roleStore, resolver, dispatcher, invitations.Config{
		TTL:        cfg.Invitations.TTL,
		AcceptURL:  cfg.Invitations.AcceptURL,
		BcryptCost: cfg.Auth.BcryptCost,
	}, logger, metrics)

	gate := authz.NewGate(sessionService, tenantService, resolver,
		authz.WithLogger(logger),
		authz.WithMetrics(metrics),
	)

	// Events go to the database and the application log
	auditStore := audit.NewStore(db)
	purgeAudit := auditStore.Purge
	var archive *postgres.S3Client
	if cfg.Archive.S3Bucket != "" {
		archive, err = postgres.NewS3Client(ctx, cfg.Storage())
		if err != nil {
			return err
		}
		purgeAudit = audit.NewArchiver(auditStore, archive, cfg.Archive.Prefix).Archive
	}
	serverCfg := api.ServerConfig{
		Logger:   logger,
		AuditLog: audit.NewMultiLogger(auditStore, audit.NewAppLogger(logger)),
	}

	// Credential throttling
	var memoryLimiter *middleware.MemoryLimiter
	if cfg.Throttle.Enabled {
		serverCfg.Throttle = middleware.ThrottleConfig{Attempts: cfg.Throttle.Attempts, Window: cfg.Throttle.Window}
		if redisClient != nil {
			serverCfg.Limiter = middleware.NewRedisLimiter(redisClient, serverCfg.Throttle, cfg.Cache.RedisPrefix+"throttle:")
		} else {
			memoryLimiter = middleware.NewMemoryLimiter(serverCfg.Throttle)
			serverCfg.Limiter = memoryLimiter
		}
	}

	server := api.NewServer(api.Services{
		Sessions:    sessionService,
		Tenants:     tenantService,
		Invitations: invitationService,
		RBAC:        roles,
		Audit:       auditStore,
	}, gate, serverCfg)

	var handler http.Handler = server
	if cfg.Observability.MetricsEnabled {
		server.Router().Use(observability.HTTPMetricsMiddleware(metrics))
	}
	if providers != nil {
		handler = httputil.TracingMiddleware(cfg.Observability.OTelServiceName, nil)(handler)
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	servers := []*http.Server{apiServer}

	// Health and metrics live on their own port for probes and scrapers
	checker := observability.NewHealthChecker(version).
		AddCheck("postgres", true, databaseCheck(db, metrics))
	if redisClient != nil {
		checker.AddCheck("redis", false, observability.RedisCheck(redisClient))
	}
	if archive != nil {
		checker.AddCheck("s3", false, func(ctx context.Context) (observability.DependencyStatus, error) {
			return observability.DependencyStatus{}, archive.HealthCheck(ctx)
		})
	}
	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, checker)
	if cfg.Observability.MetricsEnabled {
		healthRouter.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	}
	if cfg.Server.HealthPort != "" {
		servers = append(servers, &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
			Handler:           healthRouter,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	// Background maintenance
	if cfg.Maintenance.Enabled {
		scheduler, err := maintenance.NewScheduler(invitationService, sessionService, maintenance.Config{
			InvitationExpirySchedule: cfg.Maintenance.InvitationExpirySchedule,
			SessionPurgeSchedule:     cfg.Maintenance.SessionPurgeSchedule,
			SessionRetention:         cfg.Maintenance.SessionRetention,
		}, logger, metrics)
		if err != nil {
			return err
		}
		if memoryLimiter != nil {
			err := scheduler.AddJob(maintenance.JobThrottleCleanup, "@every 5m", func(context.Context) (int64, error) {
				memoryLimiter.Cleanup()
				return 0, nil
			})
			if err != nil {
				return err
			}
		}
		if retention := cfg.Maintenance.AuditRetention; retention > 0 {
			err := scheduler.AddJob(maintenance.JobPurgeAudit, cfg.Maintenance.AuditPurgeSchedule, func(ctx context.Context) (int64, error) {
				return purgeAudit(ctx, time.Now().UTC().Add(-retention))
			})
			if err != nil {
				return err
			}
		}
		scheduler.Start()
		cleanup("maintenance", scheduler.Stop)
	}

	for _, srv := range servers {
		cleanup("http "+srv.Addr, srv.Shutdown)
	}

	g, gctx := errgroup.WithContext(ctx)
	if path := os.Getenv(config.EnvConfigFile); path != "" {
		watchCtx, stopWatch := context.WithCancel(gctx)
		cleanup("config watcher", func(context.Context) error {
			stopWatch()
			return nil
		})
		g.Go(func() error {
			return config.Watch(watchCtx, path, logger, func(next *config.Config) {
				logger.SetLevel(next.Observability.Level())
				boot.SetLevel(logrusLevel(next.Observability.LogLevel))
			})
		})
	}
	for _, srv := range servers {
		srv := srv // per-iteration copy; go directive is 1.21 (pre-loopvar semantics)
		g.Go(func() error {
			boot.Infof("Listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s failed: %w", srv.Addr, err)
			}
			return nil
		})
	}
	// A failed listener cancels gctx, which shuts everything else down
	g.Go(func() error {
		return shutdown.WaitForShutdown(gctx)
	})
	return g.Wait()
}

// databaseCheck refreshes pool gauges on every readiness probe
func databaseCheck(db *sql.DB, metrics *observability.Metrics) observability.CheckFunc {
	check := observability.DatabaseCheck(db)
	return func(ctx context.Context) (observability.DependencyStatus, error) {
		metrics.UpdateDBStats(db.Stats())
		return check(ctx)
	}
}
