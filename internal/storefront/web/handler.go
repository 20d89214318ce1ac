// Package web serves the storefront JSON API: cart, checkout and order
// confirmation.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storefront/cart"
	"github.com/xenking/storefront/internal/storefront/checkout"
	"github.com/xenking/storefront/internal/storefront/orderapi"
)

// OrderAPI is the part of the order-api client the storefront reads from.
type OrderAPI interface {
	PaymentMethods(ctx context.Context) (map[payment.Key]orderapi.MethodInfo, error)
	Order(ctx context.Context, id string) (*orderapi.Order, error)
}

var _ OrderAPI = (*orderapi.Client)(nil)

// Handler serves storefront routes for the shopper resolved by Identity.
type Handler struct {
	carts    *cart.Store
	checkout *checkout.Orchestrator
	orders   OrderAPI
}

// NewHandler creates a Handler.
func NewHandler(carts *cart.Store, orch *checkout.Orchestrator, orders OrderAPI) *Handler {
	return &Handler{carts: carts, checkout: orch, orders: orders}
}

// Routes registers every storefront route on r behind id.
func (h *Handler) Routes(r chi.Router, id *Identity) {
	r.Group(func(r chi.Router) {
		r.Use(id.Middleware)

		r.Get("/cart", h.GetCart)
		r.Post("/cart/items", h.AddItem)
		r.Patch("/cart/items", h.UpdateItem)
		r.Delete("/cart/items", h.RemoveItem)
		r.Delete("/cart", h.ClearCart)

		r.Get("/checkout", h.GetCheckout)
		r.Put("/checkout/shipping", h.SubmitShipping)
		r.Put("/checkout/payment", h.SelectPayment)
		r.Post("/checkout/back", h.Back)
		r.Post("/checkout/reset", h.Reset)
		r.Post("/checkout/place", h.PlaceOrder)
		r.Get("/checkout/payment-methods", h.PaymentMethods)

		r.Get("/orders/{id}/confirmation", h.Confirmation)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

func owner(r *http.Request) string {
	o, _ := OwnerFrom(r.Context())
	return o
}

// --- Cart ---

type cartLineResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Color     string          `json:"color,omitempty"`
	Size      string          `json:"size,omitempty"`
	LineTotal decimal.Decimal `json:"lineTotal"`
	AddedAt   time.Time       `json:"addedAt"`
}

type cartResponse struct {
	Lines     []cartLineResponse `json:"lines"`
	ItemCount int                `json:"itemCount"`
	Subtotal  decimal.Decimal    `json:"subtotal"`
}

func toCartResponse(c *cart.Cart) cartResponse {
	lines := make([]cartLineResponse, len(c.Lines))
	for i, l := range c.Lines {
		lines[i] = cartLineResponse{
			ID:        l.ProductID,
			Name:      l.Name,
			Image:     l.ImageURL,
			Price:     l.UnitPrice,
			Quantity:  l.Quantity,
			Color:     l.Color,
			Size:      l.Size,
			LineTotal: l.Total(),
			AddedAt:   l.AddedAt,
		}
	}
	return cartResponse{Lines: lines, ItemCount: c.ItemCount(), Subtotal: c.Subtotal()}
}

type lineKeyRequest struct {
	ID       product.FlexibleID `json:"id"`
	Color    string             `json:"color"`
	Size     string             `json:"size"`
	Quantity int                `json:"quantity"`
}

func (k lineKeyRequest) key() cart.LineKey {
	return cart.LineKey{ProductID: string(k.ID), Color: k.Color, Size: k.Size}
}

type addItemRequest struct {
	lineKeyRequest
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image"`
}

// GetCart returns the shopper's cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), owner(r))
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// AddItem adds a line, merging with an existing line of the same variant.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := h.carts.Add(r.Context(), owner(r), cart.Line{
		ProductID: string(req.ID),
		Name:      req.Name,
		ImageURL:  req.Image,
		Quantity:  req.Quantity,
		UnitPrice: req.Price,
		Color:     req.Color,
		Size:      req.Size,
	})
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// UpdateItem sets a line's quantity; below 1 removes the line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req lineKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := h.carts.SetQuantity(r.Context(), owner(r), req.key(), req.Quantity)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// RemoveItem deletes a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	var req lineKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := h.carts.Remove(r.Context(), owner(r), req.key())
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), owner(r)); err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(&cart.Cart{}))
}

// --- Checkout ---

type sessionResponse struct {
	State         checkout.State        `json:"state"`
	Shipping      checkout.ShippingInfo `json:"shipping"`
	PaymentMethod payment.Key           `json:"paymentMethod,omitempty"`
	CouponCode    string                `json:"couponCode,omitempty"`
	LastError     string                `json:"lastError,omitempty"`
	OrderID       string                `json:"orderId,omitempty"`
	RedirectURL   string                `json:"redirectUrl,omitempty"`
}

func toSessionResponse(s *checkout.Session) sessionResponse {
	return sessionResponse{
		State:         s.State,
		Shipping:      s.Shipping,
		PaymentMethod: s.PaymentMethod,
		CouponCode:    s.CouponCode,
		LastError:     s.LastError,
		OrderID:       s.OrderID,
		RedirectURL:   s.RedirectURL,
	}
}

func (h *Handler) respondSession(w http.ResponseWriter, r *http.Request, s *checkout.Session, err error) {
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(s))
}

// GetCheckout returns the checkout session.
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	s, err := h.checkout.View(r.Context(), owner(r))
	h.respondSession(w, r, s, err)
}

// SubmitShipping stores shipping info.
func (h *Handler) SubmitShipping(w http.ResponseWriter, r *http.Request) {
	var req checkout.ShippingInfo
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s, err := h.checkout.SubmitShipping(r.Context(), owner(r), req)
	h.respondSession(w, r, s, err)
}

type selectPaymentRequest struct {
	PaymentMethod string  `json:"paymentMethod"`
	CouponCode    *string `json:"couponCode"`
}

// SelectPayment selects the payment method and optionally the promo code.
func (h *Handler) SelectPayment(w http.ResponseWriter, r *http.Request) {
	var req selectPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CouponCode != nil {
		if _, err := h.checkout.SetCoupon(r.Context(), owner(r), *req.CouponCode); err != nil {
			mapError(w, r, err)
			return
		}
	}
	s, err := h.checkout.SelectPayment(r.Context(), owner(r), req.PaymentMethod)
	h.respondSession(w, r, s, err)
}

type backRequest struct {
	Step string `json:"step"`
}

// Back returns to the shipping or payment step.
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	var req backRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var (
		s   *checkout.Session
		err error
	)
	switch req.Step {
	case "shipping":
		s, err = h.checkout.EditShipping(r.Context(), owner(r))
	case "payment":
		s, err = h.checkout.EditPayment(r.Context(), owner(r))
	default:
		writeError(w, http.StatusBadRequest, `step must be "shipping" or "payment"`)
		return
	}
	h.respondSession(w, r, s, err)
}

// Reset starts a new checkout.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	s, err := h.checkout.Reset(r.Context(), owner(r))
	h.respondSession(w, r, s, err)
}

type placeResponse struct {
	RedirectURL     string `json:"redirectUrl,omitempty"`
	OrderID         string `json:"orderId,omitempty"`
	ConfirmationURL string `json:"confirmationUrl,omitempty"`
	CartCleared     bool   `json:"cartCleared"`
}

type placeErrorResponse struct {
	Error    string          `json:"error"`
	Checkout sessionResponse `json:"checkout"`
}

// PlaceOrder submits the order. Redirect methods answer redirectUrl; cash
// on delivery answers orderId and the confirmation path.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	res, err := h.checkout.PlaceOrder(r.Context(), owner(r))
	if err != nil {
		var placeErr *checkout.PlaceError
		if errors.As(err, &placeErr) {
			writeJSON(w, placeStatus(placeErr), placeErrorResponse{
				Error:    placeErr.Message,
				Checkout: toSessionResponse(placeErr.Session),
			})
			return
		}
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment.Match(res.Method,
		func(payment.Redirect) placeResponse {
			return placeResponse{RedirectURL: res.RedirectURL, CartCleared: res.CartCleared}
		},
		func(payment.CashOnDelivery) placeResponse {
			return placeResponse{
				OrderID:         res.OrderID,
				ConfirmationURL: "/orders/" + res.OrderID + "/confirmation",
				CartCleared:     res.CartCleared,
			}
		},
	))
}

// placeStatus keeps order-api client errors and reports everything else
// as a bad gateway.
func placeStatus(e *checkout.PlaceError) int {
	var apiErr *orderapi.APIError
	if errors.As(e, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		return apiErr.Status
	}
	return http.StatusBadGateway
}

type methodResponse struct {
	Key  payment.Key `json:"key"`
	Type string      `json:"type"`
	Icon string      `json:"icon"`
}

// PaymentMethods lists the selectable methods in display order.
func (h *Handler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	infos, err := h.orders.PaymentMethods(r.Context())
	if err != nil {
		mapError(w, r, err)
		return
	}
	out := make([]methodResponse, 0, len(infos))
	for _, m := range payment.All() {
		info, ok := infos[m.Key()]
		if !ok {
			continue
		}
		out = append(out, methodResponse{Key: m.Key(), Type: info.Type, Icon: info.Icon})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Orders ---

type confirmationItem struct {
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
}

type confirmationResponse struct {
	OrderID       string             `json:"orderId"`
	Status        string             `json:"status"`
	PaymentMethod string             `json:"paymentMethod"`
	Items         []confirmationItem `json:"items"`
	Subtotal      decimal.Decimal    `json:"subtotal"`
	Discount      decimal.Decimal    `json:"discount"`
	Total         decimal.Decimal    `json:"total"`
	PlacedAt      time.Time          `json:"placedAt"`
}

// Confirmation returns the order confirmation view.
func (h *Handler) Confirmation(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Order(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, r, err)
		return
	}
	items := make([]confirmationItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = confirmationItem{Name: it.Name, Quantity: it.Quantity, Price: it.Price, Description: it.Description}
	}
	writeJSON(w, http.StatusOK, confirmationResponse{
		OrderID:       o.ID,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		Items:         items,
		Subtotal:      o.Subtotal,
		Discount:      o.Discount,
		Total:         o.Total,
		PlacedAt:      o.CreatedAt,
	})
}
