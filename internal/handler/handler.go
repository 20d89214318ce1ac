// Package handler implements the order-api HTTP endpoints on chi.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
)

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
	// WebhookSecret verifies payment callback signatures.
	WebhookSecret []byte
	// Sandbox enables the local pay page that completes sandbox sessions.
	Sandbox bool
}

// Handler serves the order-api, delegating business logic to the domain
// services and repositories.
type Handler struct {
	products  product.Repository
	methods   payment.Repository
	orders    *order.Service
	inventory *inventory.Service
	cfg       HandlerConfig

	ordersPlaced     metric.Int64Counter
	stockAdjustments metric.Int64Counter

	now func() time.Time
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	products product.Repository,
	methods payment.Repository,
	orders *order.Service,
	inv *inventory.Service,
	meter metric.Meter,
) (*Handler, error) {
	ordersPlaced, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders created, by payment method"))
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}
	stockAdjustments, err := meter.Int64Counter("inventory.adjustments",
		metric.WithDescription("Stock adjustments applied, by mode"))
	if err != nil {
		return nil, errors.Wrap(err, "create adjustments counter")
	}
	return &Handler{
		products:         products,
		methods:          methods,
		orders:           orders,
		inventory:        inv,
		cfg:              cfg,
		ordersPlaced:     ordersPlaced,
		stockAdjustments: stockAdjustments,
		now:              time.Now,
	}, nil
}

// Routes registers every order-api route on r. Admin routes require an API
// key checked by sec.
func (h *Handler) Routes(r chi.Router, sec *SecurityHandler) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)
		r.Get("/payment-methods", h.ListPaymentMethods)
		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders/{id}", h.GetOrder)
		r.Post("/payments/callback", h.PaymentCallback)

		r.Route("/admin/inventory", func(r chi.Router) {
			r.Use(sec.Authenticate)
			r.With(sec.RequireScope(auth.ScopeInventoryRead)).Get("/", h.ListInventory)
			r.With(sec.RequireScope(auth.ScopeInventoryRead)).Get("/export", h.ExportInventory)
			r.With(sec.RequireScope(auth.ScopeInventoryRead)).Get("/{id}/movements", h.ListMovements)
			r.With(sec.RequireScope(auth.ScopeInventoryWrite)).Post("/{id}/adjust", h.AdjustStock)
		})
	})
	if h.cfg.Sandbox {
		r.Get("/sandbox/pay/{session}", h.SandboxPay)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}
