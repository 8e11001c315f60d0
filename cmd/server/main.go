package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/hoversale/internal"
	"github.com/dukerupert/hoversale/internal/billing"
	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/dukerupert/hoversale/internal/email"
	"github.com/dukerupert/hoversale/internal/events"
	"github.com/dukerupert/hoversale/internal/handler/api"
	"github.com/dukerupert/hoversale/internal/handler/webhook"
	"github.com/dukerupert/hoversale/internal/idempotency"
	"github.com/dukerupert/hoversale/internal/middleware"
	"github.com/dukerupert/hoversale/internal/postgres"
	"github.com/dukerupert/hoversale/internal/router"
	"github.com/dukerupert/hoversale/internal/routes"
	"github.com/dukerupert/hoversale/internal/service"
	"github.com/dukerupert/hoversale/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	// Error tracking
	flushSentry, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:              cfg.Sentry.DSN,
		Enabled:          cfg.Sentry.Enabled,
		Environment:      cfg.Sentry.Environment,
		Release:          cfg.Sentry.Release,
		SampleRate:       cfg.Sentry.SampleRate,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		Debug:            cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer flushSentry()

	telemetry.InitBusinessMetrics("hoversale")

	// Run migrations over database/sql, then serve from a pgx pool
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := internal.RunMigrations(sqlDB, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	orderStore := postgres.NewOrderStore(pool, logger)
	catalogStore := postgres.NewCatalogStore(pool)

	healthChecks := map[string]api.HealthCheck{
		"postgres": pool.Ping,
	}

	// ==========================================================================
	// Optional infrastructure
	// ==========================================================================

	var publisher domain.EventPublisher = domain.NopPublisher{}
	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = events.Connect(cfg.NATS.URL, "hoversale", logger)
		if err != nil {
			return err
		}
		defer natsConn.Close()

		publisher = events.NewPublisher(natsConn, logger)
		healthChecks["nats"] = func(context.Context) error {
			if s := natsConn.Status(); s != nats.CONNECTED {
				return fmt.Errorf("nats status %s", s)
			}
			return nil
		}
	} else {
		logger.Warn("NATS_URL not set, order events are not published and no consumers run")
	}

	var idemStore *idempotency.Store
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		idemStore = idempotency.NewStore(redisClient, cfg.Redis.IdempotencyTTL)
		healthChecks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	} else {
		logger.Warn("REDIS_URL not set, Idempotency-Key headers are ignored")
	}

	var invoices service.InvoiceSender
	if cfg.Email.Host != "" {
		sender := email.NewSMTPSender(&email.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     int(cfg.Email.Port),
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			FromName: cfg.Email.FromName,
			Timeout:  15 * time.Second,
		}, logger)
		emailService, err := email.NewService(sender, cfg.Email.From, cfg.Email.FromName)
		if err != nil {
			return fmt.Errorf("failed to initialize email service: %w", err)
		}
		invoices = emailService
	}

	// ==========================================================================
	// Payments
	// ==========================================================================

	upi, err := billing.NewUPIBuilder(billing.UPIConfig{
		VPA:       cfg.Merchant.UPIID,
		PayeeName: cfg.Merchant.DisplayName,
	})
	if err != nil {
		logger.Warn("UPI intents disabled", "error", err)
	}

	var checkout billing.Checkout
	var stripeWebhook http.HandlerFunc
	switch cfg.CheckoutProvider {
	case "stripe":
		stripeCheckout, err := billing.NewStripeCheckout(billing.StripeConfig{
			SecretKey:      cfg.Stripe.SecretKey,
			PublishableKey: cfg.Stripe.PublishableKey,
			WebhookSecret:  cfg.Stripe.WebhookSecret,
		})
		if err != nil {
			logger.Warn("Stripe checkout disabled", "error", err)
			break
		}
		checkout = stripeCheckout
	default:
		razorpayConfig := billing.RazorpayConfig{
			KeyID:     cfg.Razorpay.KeyID,
			KeySecret: cfg.Razorpay.KeySecret,
			Settings:  billing.Settings{Timeout: cfg.Razorpay.Timeout},
		}
		razorpayCheckout, err := billing.NewRazorpayCheckout(razorpayConfig)
		if err != nil {
			logger.Warn("Razorpay checkout disabled", "error", err)
			break
		}
		checkout = razorpayCheckout
		logger.Info("Razorpay checkout initialized", "test_mode", razorpayConfig.IsTestMode())
	}

	// ==========================================================================
	// Services
	// ==========================================================================

	resolver := service.NewResolver(catalogStore, catalogStore)
	orderService := service.NewOrderService(orderStore, resolver, publisher, invoices, service.PricingMode(cfg.PricingMode), logger)
	paymentService := service.NewPaymentService(orderStore, checkout, upi, publisher, logger)

	if sc, ok := checkout.(*billing.StripeCheckout); ok {
		stripeWebhook = webhook.NewStripeHandler(sc, paymentService, logger).HandleWebhook
	}

	// ==========================================================================
	// Consumers
	// ==========================================================================

	consumerDone := make(chan struct{})
	if natsConn != nil {
		consumer := events.NewConsumer(natsConn, events.Config{Queue: cfg.NATS.Queue}, logger)
		consumer.Handle(domain.SubjectFulfillmentUpdates, events.FulfillmentHandler(orderService))
		consumer.Handle(domain.SubjectUPISettled, events.SettlementHandler(paymentService))
		go func() {
			defer close(consumerDone)
			if err := consumer.Start(ctx); err != nil {
				logger.Error("consumer stopped", "error", err)
			}
		}()
	} else {
		close(consumerDone)
	}

	// ==========================================================================
	// HTTP
	// ==========================================================================

	metrics := middleware.NewMetrics("hoversale")

	securityConfig := middleware.DefaultSecurityHeadersConfig()
	if cfg.Env == "dev" {
		securityConfig.HSTSMaxAge = 0
	}

	defaultRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer defaultRateLimiter.Stop()
	paymentRateLimiter := middleware.NewRateLimiter(middleware.PaymentRateLimiterConfig())
	defer paymentRateLimiter.Stop()

	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		middleware.WithCaller,
		middleware.WithRequestLogger(logger),
		router.Logger(logger),
		telemetry.SentryMiddleware(),
		telemetry.SentryContextMiddleware(func(ctx context.Context) *telemetry.UserInfo {
			if id := domain.UserIDFromContext(ctx); id != "" {
				return &telemetry.UserInfo{ID: id}
			}
			return nil
		}),
		router.CORS(cfg.AllowedOrigins),
		middleware.SecurityHeaders(securityConfig),
		metrics.Middleware,
		middleware.MaxBodySize(middleware.DefaultMaxBodySize),
		middleware.Timeout(middleware.DefaultTimeout),
		defaultRateLimiter.Middleware,
	)

	routes.RegisterOpsRoutes(r, routes.OpsDeps{
		Health:  api.NewHealthHandler(healthChecks, logger),
		Metrics: metrics.Handler(),
	})
	routes.RegisterAPIRoutes(r, routes.APIDeps{
		Orders:         api.NewOrderHandler(orderService, logger),
		Payments:       api.NewPaymentHandler(paymentService, logger),
		Idempotency:    idemStore,
		PaymentLimiter: paymentRateLimiter,
	})
	routes.RegisterWebhookRoutes(r, routes.WebhookDeps{
		StripeHandler: stripeWebhook,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			"address", srv.Addr,
			"checkout", cfg.CheckoutProvider,
			"pricing_mode", cfg.PricingMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	<-consumerDone
	if natsConn != nil {
		if err := natsConn.Drain(); err != nil {
			logger.Warn("nats drain failed", "error", err)
		}
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
