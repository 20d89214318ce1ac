package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// httpSettings is the part of a service config shared by every HTTP server.
type httpSettings struct {
	Service   string
	Addr      string
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
	// AllowHeaders lists request headers accepted from browsers.
	AllowHeaders []string
}

// newServer wraps router with the outer middleware chain. Route-aware
// middleware (Labeler, LogRequests) is installed on the chi router itself.
func newServer(ctx context.Context, m httpmiddleware.TelemetryProvider, s httpSettings, router http.Handler) *http.Server {
	return &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              s.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     s.CORS.Origins,
				AllowHeaders:     s.AllowHeaders,
				AllowCredentials: s.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    s.RateLimit.Max,
				Window: s.RateLimit.Window,
				Skip:   httpmiddleware.SkipProbes,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(s.Service, m),
		),
	}
}

// serve runs server until ctx is cancelled, then drains: readiness goes
// false, the server waits ReadinessDelay for load balancers to notice and
// shuts down within ShutdownTimeout.
func serve(ctx context.Context, lg *zap.Logger, server *http.Server, hc *health.Health, g GracefulConfig) error {
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		hc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", g.ReadinessDelay))
		time.Sleep(g.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), g.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", g.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		hc.Stop()
	}()

	lg.Info("Server listening", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
