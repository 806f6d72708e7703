package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/folio/internal/anchor"
	"github.com/MrSnakeDoc/folio/internal/canon"
	"github.com/MrSnakeDoc/folio/internal/config"
	"github.com/MrSnakeDoc/folio/internal/fetch"
	"github.com/MrSnakeDoc/folio/internal/httpserver"
	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/metrics"
	"github.com/MrSnakeDoc/folio/internal/redis"
	"github.com/MrSnakeDoc/folio/internal/scheduler"
	"github.com/MrSnakeDoc/folio/internal/snapshot"
	"github.com/MrSnakeDoc/folio/internal/sources/policy"
	redisstore "github.com/MrSnakeDoc/folio/internal/store/redis"
	"github.com/MrSnakeDoc/folio/internal/utils"
	"github.com/MrSnakeDoc/folio/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	resolver    *snapshot.Resolver
	reloader    *scheduler.PolicyReloader
	sweeper     *scheduler.CacheSweeper
	warmer      *scheduler.SnapshotWarmer
}

func New() (*App, error) {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
	m := metrics.NewMetrics(nil)

	// Redis is optional; when configured it must answer, fail fast otherwise
	var (
		redisClient *goredis.Client
		store       *redisstore.Store
	)
	if cfg.RedisEnabled() {
		client, err := redis.New(context.Background(), redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			DB:             cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, logger.Component(loggerClient, "redis"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		redisClient = client
		store = redisstore.NewStore(client)
		loggerClient.Info("Redis initialized successfully")
	} else {
		loggerClient.Info("redis not configured, snapshots live in memory only")
	}

	canonicalizer := canon.New(canon.Policy{})
	activePolicy := policy.NewActive(nil)

	fetcher := fetch.New(fetch.Options{
		UserAgent:    cfg.UserAgent,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Readability:  cfg.Readability,
		Timeout:      cfg.FetchTimeout,
	}, logger.Component(loggerClient, "fetch"))

	resolverOpts := snapshot.Options{
		TTL:          cfg.CacheTTL,
		Retention:    cfg.CacheRetention,
		Capacity:     cfg.CacheCapacity,
		FetchTimeout: cfg.FetchTimeout,
		TTLFor:       activePolicy.TTLFor,
		Observer:     m,
		Logger:       logger.Component(loggerClient, "resolver"),
	}
	if store != nil {
		resolverOpts.Persister = store
	}
	resolver := snapshot.NewResolver(fetcher, resolverOpts)

	schedLog := logger.Component(loggerClient, "scheduler")

	// Initialize policy reloader (if a policy file is configured)
	var reloader *scheduler.PolicyReloader
	var reloadTrigger chan struct{}
	if cfg.PolicyFile != "" {
		loggerClient.Info("policy file configured, initializing policy reloader",
			logger.String("file", cfg.PolicyFile))
		reloadTrigger = make(chan struct{}, 1)
		reloader = scheduler.NewPolicyReloader(
			cfg.PolicyFile,
			canonicalizer,
			activePolicy,
			schedLog,
			cfg.ReloadInterval,
			reloadTrigger,
		)
	} else {
		loggerClient.Info("policy file not configured, using default policy")
	}

	sweeper := scheduler.NewCacheSweeper(resolver, store, schedLog, cfg.SweepInterval)

	var warmer *scheduler.SnapshotWarmer
	if store != nil {
		warmer = scheduler.NewSnapshotWarmer(store, resolver, schedLog, cfg.WarmLimit)
	}

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Build:           version.Get(),
		TimeNow:         time.Now,
		AllowedHosts:    cfg.AllowedHosts,
		AllowedCIDRS:    cfg.AllowedCIDRS,
		TrustProxy:      cfg.TrustProxy,
		RateLimitBurst:  cfg.RateLimitBurst,
		RateLimitRefill: cfg.RateLimitRefill,
		Canonicalizer:   canonicalizer,
		Resolver:        resolver,
		Anchors:         anchor.NewEngine(anchor.Options{FuzzyThreshold: cfg.FuzzyThreshold}),
		Metrics:         m,
		Store:           store,
		Policy:          activePolicy,
		PolicyFile:      cfg.PolicyFile,
		ReloadTrigger:   reloadTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		resolver:    resolver,
		reloader:    reloader,
		sweeper:     sweeper,
		warmer:      warmer,
	}, nil
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting folio v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.Get().String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Seed the cache from redis before taking traffic
	if a.warmer != nil {
		if err := a.warmer.Warm(ctx); err != nil {
			a.logger.Warn("failed to warm cache from redis, starting cold",
				logger.Error(err))
		}
	}

	// Start policy reloader (loads the file and starts periodic refresh)
	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start policy reloader: %w", err)
		}
		a.logger.Info("policy reloader started",
			logger.Duration("interval", a.cfg.ReloadInterval))
	}

	if err := a.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start cache sweeper: %w", err)
	}
	a.logger.Info("cache sweeper started",
		logger.Duration("interval", a.cfg.SweepInterval))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Start(); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("⏳ Shutting down gracefully...")
		return a.shutdown()
	})

	if err := g.Wait(); err != nil {
		return err
	}

	a.logger.Info("✅ folio stopped cleanly")
	return nil
}

func (a *App) shutdown() error {
	if a.reloader != nil {
		a.reloader.Stop()
	}
	a.sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	// Cancels fetches still in flight and waits for them to settle
	if err := a.resolver.Close(); err != nil {
		a.logger.Warn("failed to close resolver", logger.Error(err))
	}

	if a.redisClient != nil {
		utils.MustClose(a.redisClient)
		a.logger.Info("✅ Redis closed")
	}

	_ = a.logger.Sync()
	return nil
}
