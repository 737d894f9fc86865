package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"github.com/mindfulmate/mindful/pkg/api"
	"github.com/mindfulmate/mindful/pkg/async"
	"github.com/mindfulmate/mindful/pkg/auth"
	"github.com/mindfulmate/mindful/pkg/billing"
	"github.com/mindfulmate/mindful/pkg/cache"
	"github.com/mindfulmate/mindful/pkg/config"
	"github.com/mindfulmate/mindful/pkg/middleware"
	"github.com/mindfulmate/mindful/pkg/observability"
	"github.com/mindfulmate/mindful/pkg/payments"
	"github.com/mindfulmate/mindful/pkg/storage"
)

var version = "dev"

var (
	sweepOnce   = flag.Bool("sweep-once", false, "Settle stale pending purchases once and exit")
	mintToken   = flag.Int64("mint-token", 0, "Print a session token for the given user ID and exit")
	createUser  = flag.String("create-user", "", "Create a user with this email and exit")
	userName    = flag.String("name", "", "Name for -create-user")
	userRole    = flag.String("role", "user", "Role for -create-user (user, expert or admin)")
	userCredits = flag.Int("credits", 0, "Starting message credits for -create-user")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mindful-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)
	ctx := observability.WithLogger(context.Background(), logger)

	db, err := storage.Open(ctx, storage.Options{
		Driver:          cfg.Database.Driver,
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	store := storage.NewSQLStore(db, cfg.Database.Driver).WithLogger(logger)
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return err
	}

	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		store.Close()
		return err
	}

	switch {
	case *createUser != "":
		defer store.Close()
		return runCreateUser(ctx, store)
	case *mintToken != 0:
		defer store.Close()
		return runMintToken(ctx, store, issuer, *mintToken)
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = storage.NewRedisClient(ctx, storage.RedisOptions{
			URL:          cfg.Redis.URL,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolSize:     cfg.Redis.PoolSize,
		})
		if err != nil {
			store.Close()
			return err
		}
		logger.Info("connected to redis")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	var balances cache.BalanceCache
	switch cfg.Cache.Backend {
	case "redis":
		balances = cache.NewRedisCache(redisClient, cfg.Cache.TTL)
	case "memory":
		balances = cache.NewMemoryCache(cfg.Cache.Size, cfg.Cache.TTL)
	}

	billingSvc := billing.NewService(
		store,
		payments.NewClient(cfg.Khalti.BaseURL, cfg.Khalti.SecretKey, cfg.Khalti.Timeout),
		billing.Config{
			UnitPrice:    cfg.Billing.UnitPrice,
			MaxCredits:   cfg.Billing.MaxCredits,
			ReturnURL:    cfg.ReturnURL(),
			WebsiteURL:   cfg.Khalti.WebsiteURL,
			SweepAge:     cfg.Billing.SweepAge,
			SweepWorkers: cfg.Billing.SweepWorkers,
		},
		cache.NewCounter(balances, store.ChatCount, metrics),
		metrics,
	).WithLogger(logger)

	if *sweepOnce {
		defer store.Close()
		res, err := billingSvc.SweepPending(ctx)
		if err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"checked":   res.Checked,
			"completed": res.Completed,
			"failed":    res.Failed,
			"errors":    res.Errors,
		}).Info("sweep finished")
		return nil
	}

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		store.Close()
		return err
	}

	var limiter middleware.Limiter
	if cfg.RateLimit.Enabled {
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerWindow = cfg.RateLimit.RequestsPerMinute
		if cfg.RateLimit.Backend == "redis" {
			limiter = middleware.NewDistributedRateLimiter(redisClient, rl, "")
		} else {
			memLimiter := middleware.NewRateLimiter(rl)
			memLimiter.StartCleanup(ctx)
			limiter = memLimiter
		}
	}

	opts := api.Options{
		Store:          store,
		Payments:       billingSvc,
		Auth:           issuer,
		Cache:          balances,
		Limiter:        limiter,
		Health:         observability.NewHealthChecker(db, redisClient, version),
		Metrics:        metrics,
		Logger:         logger,
		CookieName:     cfg.Auth.CookieName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		FrontendURL:    cfg.Server.FrontendURL,
	}
	if cfg.Observability.MetricsEnabled {
		opts.Gatherer = registry
	}
	server := api.NewServer(opts)
	httpServer := server.HTTPServer(cfg.Server.Addr(), cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout)

	scheduler := cron.New(cron.WithLocation(time.UTC))
	if _, err := billingSvc.Schedule(scheduler, cfg.Billing.SweepSchedule); err != nil {
		store.Close()
		return err
	}
	scheduler.Start()
	async.SafeGo(ctx, logger, cfg.Billing.SweepAge, "startup sweep", func(ctx context.Context) error {
		_, err := billingSvc.SweepPending(ctx)
		return err
	})

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register(func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.Register(func(context.Context) error { return store.Close() })
	if redisClient != nil {
		shutdown.Register(func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"db_driver":      cfg.Database.Driver,
			"cache":          cfg.Cache.Backend,
			"sweep_schedule": cfg.Billing.SweepSchedule,
		}).Infof("starting mindful API on %s", cfg.Server.Addr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err, ok := <-serveErr; ok {
			logger.WithError(err).Error("HTTP server failed")
			cancel()
		}
	}()

	return shutdown.WaitForSignal(waitCtx)
}

func runCreateUser(ctx context.Context, store *storage.SQLStore) error {
	role := storage.Role(*userRole)
	switch role {
	case storage.RoleUser, storage.RoleExpert, storage.RoleAdmin:
	default:
		return fmt.Errorf("invalid role %q", *userRole)
	}
	if *userCredits < 0 {
		return errors.New("credits must not be negative")
	}

	user := &storage.User{Email: *createUser, Name: *userName, Role: role, ChatCount: *userCredits}
	if err := store.CreateUser(ctx, user); err != nil {
		return err
	}
	fmt.Printf("created user %d (%s, %s) with %d credits\n", user.ID, user.Email, user.Role, user.ChatCount)
	return nil
}

func runMintToken(ctx context.Context, store *storage.SQLStore, issuer *auth.TokenIssuer, userID int64) error {
	user, err := store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}
	token, err := issuer.Issue(auth.Claims{UserID: user.ID, Email: user.Email, Role: auth.Role(user.Role)})
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
