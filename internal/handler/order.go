package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/paymentgw"
	"github.com/xenking/storefront/pkg/idempotency"
)

type lineItemRequest struct {
	ID          product.FlexibleID `json:"id"`
	Name        string             `json:"name"`
	Price       float64            `json:"price"`
	Quantity    int                `json:"quantity"`
	Image       string             `json:"image"`
	Description string             `json:"description"`
}

type placeOrderRequest struct {
	CartItems       []lineItemRequest `json:"cartItems"`
	ShippingAddress order.Shipping    `json:"shippingAddress"`
	PaymentMethod   string            `json:"paymentMethod"`
	CouponCode      string            `json:"couponCode"`
}

type redirectResponse struct {
	URL string `json:"url"`
}

type confirmationResponse struct {
	OrderID string `json:"orderId"`
}

// PlaceOrder creates an order. Redirect methods answer {url}; cash on
// delivery answers {orderId}.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Client prices, names and images are display only; the service
	// re-prices every line from the catalog.
	items := make([]order.LineRequest, len(req.CartItems))
	for i, it := range req.CartItems {
		items[i] = order.LineRequest{
			ProductID:   string(it.ID),
			Quantity:    it.Quantity,
			Description: it.Description,
		}
	}

	res, err := h.orders.CreateOrder(r.Context(), order.CreateRequest{
		Items:          items,
		Shipping:       req.ShippingAddress,
		PaymentMethod:  req.PaymentMethod,
		CouponCode:     req.CouponCode,
		IdempotencyKey: idempotency.Key(r),
	})
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	if !res.Replayed {
		h.ordersPlaced.Add(r.Context(), 1, metric.WithAttributes(
			attribute.String("payment_method", string(res.Order.PaymentMethod)),
		))
		zctx.From(r.Context()).Info("Order placed",
			zap.String("order_id", res.Order.ID),
			zap.String("status", string(res.Order.Status)),
			zap.String("payment_method", string(res.Order.PaymentMethod)),
			zap.String("total", res.Order.Total.StringFixed(2)),
		)
	}

	writeJSON(w, http.StatusOK, payment.Match(res.Method,
		func(payment.Redirect) any { return redirectResponse{URL: res.RedirectURL} },
		func(payment.CashOnDelivery) any { return confirmationResponse{OrderID: res.Order.ID} },
	))
}

type orderItemResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
	Image       string  `json:"image,omitempty"`
	Description string  `json:"description,omitempty"`
}

type orderResponse struct {
	OrderID       string              `json:"orderId"`
	Status        string              `json:"status"`
	PaymentMethod string              `json:"paymentMethod"`
	RedirectURL   string              `json:"redirectUrl,omitempty"`
	Items         []orderItemResponse `json:"items"`
	Subtotal      float64             `json:"subtotal"`
	Discount      float64             `json:"discount"`
	Total         float64             `json:"total"`
	CouponCode    string              `json:"couponCode,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// GetOrder returns an order by id. The lookup is unauthenticated, so the
// shipping contact is never part of the response.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderToResponse(o))
}

func (h *Handler) orderToResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ID:          it.ProductID,
			Name:        it.Name,
			Price:       it.UnitPrice.InexactFloat64(),
			Quantity:    it.Quantity,
			Image:       h.imageURL(it.ImageURL),
			Description: it.Description,
		}
	}
	resp := orderResponse{
		OrderID:       o.ID,
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		Items:         items,
		Subtotal:      o.Subtotal.InexactFloat64(),
		Discount:      o.Discount.InexactFloat64(),
		Total:         o.Total.InexactFloat64(),
		CouponCode:    o.CouponCode,
		CreatedAt:     o.CreatedAt,
	}
	// The hosted page is only useful while payment is outstanding.
	if o.Status == order.StatusPending {
		resp.RedirectURL = o.RedirectURL
	}
	return resp
}

type callbackRequest struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

type callbackResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// PaymentCallback applies a signed gateway outcome to its order.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !paymentgw.VerifySignature(h.cfg.WebhookSecret, body, r.Header.Get(paymentgw.SignatureHeader)) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req callbackRequest
	if err := decodeBytes(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.applyOutcome(w, r, req.SessionID, order.Status(req.Status))
}

// SandboxPay completes a sandbox session. The outcome query parameter
// selects paid (default) or failed.
func (h *Handler) SandboxPay(w http.ResponseWriter, r *http.Request) {
	outcome := order.StatusPaid
	if r.URL.Query().Get("outcome") == string(order.StatusFailed) {
		outcome = order.StatusFailed
	}
	h.applyOutcome(w, r, chi.URLParam(r, "session"), outcome)
}

func (h *Handler) applyOutcome(w http.ResponseWriter, r *http.Request, sessionID string, outcome order.Status) {
	o, err := h.orders.HandlePaymentCallback(r.Context(), sessionID, outcome)
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Payment outcome applied",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
	)
	writeJSON(w, http.StatusOK, callbackResponse{OrderID: o.ID, Status: string(o.Status)})
}
