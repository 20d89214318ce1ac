package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/storefront/cart"
	"github.com/xenking/storefront/internal/storefront/checkout"
	"github.com/xenking/storefront/internal/storefront/orderapi"
	"github.com/xenking/storefront/internal/storefront/redisstore"
	"github.com/xenking/storefront/internal/storefront/web"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// RunStorefront creates the storefront dependencies (Redis-backed carts and
// checkout sessions, the order-api client) and serves the shopper API.
func RunStorefront(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *StorefrontConfig) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("order_api", cfg.OrderAPI.BaseURL))

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opts)
	defer func() {
		if err := rdb.Close(); err != nil {
			lg.Warn("Close redis client", zap.Error(err))
		}
	}()
	store := redisstore.New(rdb, cfg.CartTTL)
	if err := store.Ping(ctx); err != nil {
		return errors.Wrap(err, "connect redis")
	}

	hc := health.New()
	hc.Ready("redis", health.Ping(store))
	hc.Ready("order-api",
		health.Upstream(&http.Client{Timeout: 2 * time.Second}, strings.TrimRight(cfg.OrderAPI.BaseURL, "/")+"/readyz"),
		health.WithThresholds(3, 1),
	)
	hc.Live("goroutines", health.Goroutines(10000))
	hc.Start(ctx, 10*time.Second)
	hc.SetReady(true)

	carts := cart.NewStore(store)
	orders := orderapi.NewClient(orderapi.Config{
		BaseURL:    cfg.OrderAPI.BaseURL,
		Timeout:    cfg.OrderAPI.Timeout,
		MethodsTTL: cfg.OrderAPI.MethodsTTL,
	}, m.TracerProvider())
	orchestrator := checkout.NewOrchestrator(store, carts, orders, checkout.Config{
		SubmitTimeout: cfg.Checkout.SubmitTimeout,
		ClearRetries:  cfg.Checkout.ClearRetries,
	})

	identity := &web.Identity{
		Secret:       []byte(cfg.JWTSecret),
		SecureCookie: cfg.SecureCookie,
		CookieTTL:    cfg.CartTTL,
	}
	if cfg.JWTSecret == "" {
		lg.Warn("No JWT secret configured, bearer tokens are rejected")
	}

	router := chi.NewRouter()
	router.Use(httpmiddleware.Labeler(), httpmiddleware.LogRequests())
	hc.Routes(router)
	web.NewHandler(carts, orchestrator, orders).Routes(router, identity)

	server := newServer(ctx, m, httpSettings{
		Service:      "storefront",
		Addr:         cfg.Addr,
		RateLimit:    cfg.RateLimit,
		CORS:         cfg.CORS,
		Graceful:     cfg.Graceful,
		AllowHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
	}, router)

	return serve(ctx, lg, server, hc, cfg.Graceful)
}
