package app

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/promotion"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/outbox"
	"github.com/xenking/storefront/internal/paymentgw"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all order-api dependencies, starts the HTTP server and the
// outbox relay, and handles graceful shutdown.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	hc := health.New()
	hc.Ready("postgres", health.Ping(pool), health.WithTimeout(5*time.Second))
	hc.Live("goroutines", health.Goroutines(10000))
	hc.Start(ctx, 10*time.Second)
	hc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	promotionRepo := postgres.NewPromotionRepository(pool)
	methodRepo := postgres.NewPaymentMethodRepository(pool)
	inventoryRepo := postgres.NewInventoryRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Payment gateway.
	sandbox := cfg.Gateway.BaseURL == ""
	var gateway order.Gateway
	if sandbox {
		lg.Warn("No payment gateway configured, using sandbox", zap.String("public_url", cfg.PublicURL))
		gateway = &paymentgw.Sandbox{PublicURL: cfg.PublicURL}
	} else {
		gateway = paymentgw.NewClient(paymentgw.Config{
			BaseURL: cfg.Gateway.BaseURL,
			APIKey:  cfg.Gateway.APIKey,
			Timeout: cfg.Gateway.Timeout,
		}, m.TracerProvider())
	}

	// Domain services.
	orderService := order.NewService(
		productRepo,
		promotion.NewRepoValidator(promotionRepo),
		orderRepo,
		gateway,
		order.Config{
			Currency:   cfg.Checkout.Currency,
			SuccessURL: cfg.Checkout.SuccessURL,
			CancelURL:  cfg.Checkout.CancelURL,
		},
	)
	inventoryService := inventory.NewService(inventoryRepo)

	meter := m.MeterProvider().Meter("order-api")

	// HTTP handlers.
	h, err := handler.NewHandler(
		handler.HandlerConfig{
			ImageBaseURL:  cfg.ImageBaseURL,
			WebhookSecret: []byte(cfg.Gateway.WebhookSecret),
			Sandbox:       sandbox,
		},
		productRepo,
		methodRepo,
		orderService,
		inventoryService,
		meter,
	)
	if err != nil {
		return errors.Wrap(err, "create handler")
	}
	securityHandler := handler.NewSecurityHandler(apikeyRepo, []byte(cfg.APIKeyPepper))

	// Outbox relay.
	var publisher outbox.Publisher = outbox.LogPublisher{}
	if brokers := outbox.ParseBrokers(cfg.Kafka.Brokers); len(brokers) > 0 {
		kp := outbox.NewKafkaPublisher(brokers, cfg.Kafka.Topic)
		defer func() {
			if err := kp.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}()
		publisher = kp
	} else {
		lg.Warn("No Kafka brokers configured, order events are only logged")
	}
	relay, err := outbox.NewRelay(postgres.NewOutboxStore(pool), publisher, outbox.RelayConfig{
		Interval:   cfg.Outbox.Interval,
		BatchSize:  cfg.Outbox.BatchSize,
		MaxBackoff: cfg.Outbox.MaxBackoff,
	}, meter)
	if err != nil {
		return errors.Wrap(err, "create outbox relay")
	}

	// Router: health endpoints + API routes on one server.
	router := chi.NewRouter()
	router.Use(httpmiddleware.Labeler(), httpmiddleware.LogRequests())
	hc.Routes(router)
	h.Routes(router, securityHandler)

	server := newServer(ctx, m, httpSettings{
		Service:      "order-api",
		Addr:         cfg.Addr,
		RateLimit:    cfg.RateLimit,
		CORS:         cfg.CORS,
		Graceful:     cfg.Graceful,
		AllowHeaders: []string{"Content-Type", "Authorization", "Idempotency-Key", "X-Request-ID", "X-Signature", "api_key"},
	}, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		return serve(gctx, lg, server, hc, cfg.Graceful)
	})
	return g.Wait()
}
