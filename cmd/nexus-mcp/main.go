package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/nexus-mcp/pkg/api"
	"github.com/platinummonkey/nexus-mcp/pkg/async"
	"github.com/platinummonkey/nexus-mcp/pkg/audit"
	"github.com/platinummonkey/nexus-mcp/pkg/authz"
	"github.com/platinummonkey/nexus-mcp/pkg/catalog"
	"github.com/platinummonkey/nexus-mcp/pkg/config"
	"github.com/platinummonkey/nexus-mcp/pkg/dispatch"
	"github.com/platinummonkey/nexus-mcp/pkg/editmode"
	"github.com/platinummonkey/nexus-mcp/pkg/grouping"
	"github.com/platinummonkey/nexus-mcp/pkg/httputil"
	"github.com/platinummonkey/nexus-mcp/pkg/mcp"
	"github.com/platinummonkey/nexus-mcp/pkg/middleware"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
	"github.com/platinummonkey/nexus-mcp/pkg/storage/postgres"
	"github.com/platinummonkey/nexus-mcp/pkg/upstream"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const (
	editModeCacheKey     = "nexus-mcp:security-config"
	rateLimitPrefix      = "nexus-mcp:ratelimit:"
	replicaCheckInterval = 30 * time.Second
	maxAdminBodyBytes    = 1 << 20
)

func main() {
	namespacesFile := flag.String("namespaces", "", "Namespace registry YAML file (overrides NEXUS_MCP_NAMESPACES_FILE)")
	specDir := flag.String("spec-dir", "", "Directory holding the namespace API documents (overrides NEXUS_MCP_SPEC_DIR)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *namespacesFile != "" {
		cfg.Catalog.NamespacesFile = *namespacesFile
	}
	if *specDir != "" {
		cfg.Catalog.SpecDir = *specDir
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("nexus-mcp exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelCfg := cfg.OTel()
	otelCfg.ServiceVersion = version
	providers, err := observability.InitOTel(ctx, otelCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// Backing stores
	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfigFrom(cfg.Storage), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	conns.StartHealthCheckRoutine(ctx, replicaCheckInterval)
	db := conns.Primary()

	if err := authz.RunMigrations(ctx, db, logger); err != nil {
		return err
	}

	var redisClient *postgres.RedisClient
	if cfg.Storage.RedisEnabled() {
		redisClient, err = postgres.NewRedisClient(cfg.Storage)
		if err != nil {
			return err
		}
		logger.Info("redis connected")
	}

	// Identity and authorization
	store := authz.NewStore(db)
	resolver := authz.NewResolver(store, authz.ResolverConfig{
		SharedSecret:   cfg.Auth.SharedSecret,
		AllowAnonymous: cfg.Auth.AllowAnonymous,
		CacheTTL:       cfg.Auth.PrincipalCacheTTL,
		CacheSize:      cfg.Auth.PrincipalCacheSize,
	}, logger)
	engine := authz.NewEngine(store, logger)
	if len(cfg.Dispatch.ClusterParams) > 0 {
		engine.SetDefaultClusterParams(cfg.Dispatch.ClusterParams)
	}

	editStore, err := editmode.NewPostgresStore(db)
	if err != nil {
		return err
	}
	gate := editmode.NewGate(editStore, cfg.Dispatch.EditModeCacheTTL, logger)
	if redisClient != nil {
		gate.SetSharedCache(editmode.NewRedisCache(redisClient.GetClient(), editModeCacheKey))
	}

	// Catalog and resource groups
	namespaces := catalog.DefaultNamespaces()
	if cfg.Catalog.NamespacesFile != "" {
		namespaces, err = catalog.LoadRegistry(cfg.Catalog.NamespacesFile)
		if err != nil {
			return err
		}
	}
	cat := catalog.New(namespaces, cfg.Catalog.SpecDir, logger)
	cat.SetMetrics(metrics)
	report := cat.LoadAll(ctx)
	logger.WithFields(map[string]interface{}{
		"loaded":     len(report.Loaded),
		"failed":     len(report.Failed),
		"operations": report.Operations,
	}).Info("catalog loaded")
	for name, reason := range report.Failed {
		logger.WithFields(map[string]interface{}{"namespace": name, "reason": reason}).Warn("namespace not loaded")
	}

	groupRepo, err := grouping.NewPostgresRepository(db)
	if err != nil {
		return err
	}
	groups := grouping.NewService(groupRepo, cat, logger)
	if err := groups.EnsureAll(ctx); err != nil {
		return err
	}

	if cfg.Catalog.Watch {
		watcher, err := catalog.NewWatcher(cat, cfg.Catalog.WatchDebounce, func(namespace string, operations int) {
			if _, err := groups.Regenerate(ctx, namespace, true); err != nil {
				logger.WithError(err).WithField("namespace", namespace).Error("failed to regenerate resource groups after reload")
			}
		}, logger)
		if err != nil {
			return err
		}
		async.SafeGo(ctx, logger, 0, "catalog watcher", func(ctx context.Context) error {
			watcher.Run(ctx)
			return nil
		})
	}

	// Audit trail
	dbRecorder, err := audit.NewDBRecorder(db)
	if err != nil {
		return err
	}
	dbRecorder.SetReadDB(conns.Replica())

	recorders := []audit.Recorder{dbRecorder}
	if cfg.Audit.FilePath != "" {
		fileCfg := audit.DefaultFileRecorderConfig()
		fileCfg.BasePath = cfg.Audit.FilePath
		fileRecorder, err := audit.NewFileRecorder(fileCfg)
		if err != nil {
			return err
		}
		recorders = append(recorders, fileRecorder)
	}
	multi := audit.NewMultiRecorder(recorders...)
	multi.SetAsync(true)
	recorder := audit.NewGatedRecorder(multi, gate, logger)

	var archiver *audit.Archiver
	if cfg.Audit.ArchiveSchedule != "" {
		s3Client, err := postgres.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		archiver, err = audit.NewArchiver(dbRecorder, s3Client, audit.ArchiverConfig{
			Schedule:  cfg.Audit.ArchiveSchedule,
			Prefix:    cfg.Audit.ArchivePrefix,
			Retention: audit.RetentionPolicy{RetentionDays: cfg.Audit.RetentionDays},
		}, logger)
		if err != nil {
			return err
		}
		if err := archiver.Start(); err != nil {
			return err
		}
	}

	// Dispatch
	pool := upstream.NewPool(upstream.Config{
		Timeout:       cfg.Dispatch.APITimeout,
		RetryAttempts: cfg.Dispatch.RetryAttempts,
	}, logger)
	pool.SetMetrics(metrics)

	dispatcher, err := dispatch.New(dispatch.Dependencies{
		Gate:       gate,
		Authorizer: engine,
		Clusters:   store,
		Pool:       pool,
		Paths:      cat,
		Recorder:   recorder,
		Logger:     logger,
		Metrics:    metrics,
	}, dispatch.Config{DefaultCluster: cfg.Dispatch.DefaultCluster})
	if err != nil {
		return err
	}

	// MCP transport
	mode := mcp.ToolMode(cfg.Transport.ToolMode)
	var toolGroups mcp.Groups
	if mode == mcp.ToolModeGrouped {
		toolGroups = groups
	}
	server := mcp.NewServer(cat, toolGroups, dispatcher, mcp.ServerConfig{Mode: mode, Version: version}, logger)
	hub := mcp.NewHub(cfg.Transport.SessionQueueSize, logger)
	hub.SetMetrics(metrics)
	handler := mcp.NewHandler(server, hub, cat, mcp.HandlerConfig{Keepalive: cfg.Transport.Keepalive}, logger)
	handler.SetMetrics(metrics)

	auth := middleware.NewAuthMiddleware(resolver, logger)
	auth.SetTrustProxyHeaders(cfg.Auth.TrustProxyHeaders)

	var extra []func(http.Handler) http.Handler
	if cfg.Transport.RateLimitPerMinute > 0 {
		limitCfg := &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Transport.RateLimitPerMinute,
			WindowDuration:    time.Minute,
			BurstSize:         cfg.Transport.RateLimitBurst,
		}
		var limiter middleware.Limiter
		if redisClient != nil {
			limiter = middleware.NewDistributedRateLimiter(redisClient.GetClient(), limitCfg, rateLimitPrefix)
		} else {
			local := middleware.NewRateLimiter(limitCfg)
			local.StartCleanup(ctx)
			limiter = local
		}
		extra = append(extra, middleware.NewRateLimitMiddleware(limiter, logger).Handler)
	}

	router := mux.NewRouter()
	router.Use(
		httputil.RequestIDMiddleware,
		observability.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		observability.HTTPMetricsMiddleware(metrics),
	)
	handler.RegisterRoutes(router, auth.Handler, extra...)

	admin := api.NewServer(api.Dependencies{
		Audit:    audit.NewDBStore(dbRecorder),
		EditMode: gate,
		Groups:   groups,
		Catalog:  cat,
		Tokens:   authz.NewTokenGenerator(store, resolver),
	}, logger)
	admin.RegisterRoutes(router, httputil.Chain(auth.Handler, httputil.MaxBytesMiddleware(maxAdminBodyBytes)))

	mainServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, "nexus-mcp"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on their own port
	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(db, nil)
	if redisClient != nil {
		checker = observability.NewHealthChecker(db, redisClient.GetClient())
	}
	checker.SetVersion(version)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:        cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:     healthMux,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, mainServer, healthServer)
	shutdown.RegisterDrainFunc(hub.Shutdown)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancel()
		return nil
	})
	if archiver != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			archiver.Stop(ctx)
			return nil
		})
	}
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		multi.Wait()
		return multi.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return pool.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return conns.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	serverErr := make(chan error, 2)
	serve := func(name string, srv *http.Server) {
		defer observability.RecoverPanic(logger, name)
		logger.WithFields(map[string]interface{}{"server": name, "addr": srv.Addr}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("%s server failed: %w", name, err)
		}
	}
	go serve("mcp", mainServer)
	go serve("health", healthServer)

	logger.WithFields(map[string]interface{}{
		"version":    version,
		"tool_mode":  server.Mode(),
		"operations": cat.Count(),
		"namespaces": cat.LoadedNamespaces(),
	}).Info("Nexus Dashboard MCP server started")

	signalled := make(chan error, 1)
	go func() { signalled <- shutdown.WaitForShutdown() }()

	select {
	case err := <-signalled:
		return err
	case err := <-serverErr:
		if shutdownErr := shutdown.Shutdown(); shutdownErr != nil {
			logger.WithError(shutdownErr).Error("shutdown after server failure")
		}
		return err
	}
}
