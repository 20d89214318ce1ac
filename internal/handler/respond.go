package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "decode body")
	}
	return nil
}

// mapError converts domain errors to a status and a client-safe message.
// Unknown errors are logged and reported as 500.
func (h *Handler) mapError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeError(w, status, msg)
}

func classify(err error) (int, string) {
	var (
		qtyErr     *order.InvalidQuantityError
		pnfErr     *order.ProductNotFoundError
		orderVErr  *order.ValidationError
		invVErr    *inventory.ValidationError
		gatewayErr *order.GatewayError
	)
	switch {
	case errors.Is(err, order.ErrEmptyItems):
		return http.StatusBadRequest, order.ErrEmptyItems.Error()
	case errors.Is(err, payment.ErrUnknownMethod):
		return http.StatusBadRequest, payment.ErrUnknownMethod.Error()
	case errors.As(err, &qtyErr):
		return http.StatusBadRequest, qtyErr.Error()
	case errors.As(err, &orderVErr):
		return http.StatusBadRequest, orderVErr.Error()
	case errors.As(err, &invVErr):
		return http.StatusBadRequest, invVErr.Error()
	case errors.As(err, &pnfErr):
		return http.StatusNotFound, pnfErr.Error()
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, inventory.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, promotion.ErrInvalidCode):
		return http.StatusUnprocessableEntity, "invalid coupon code"
	case errors.Is(err, promotion.ErrExpired):
		return http.StatusUnprocessableEntity, "coupon code expired"
	case errors.Is(err, promotion.ErrUsageLimitReached):
		return http.StatusUnprocessableEntity, "coupon code usage limit reached"
	case errors.Is(err, order.ErrStatusConflict):
		return http.StatusConflict, "order status conflict"
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.As(err, &gatewayErr):
		return http.StatusBadGateway, "payment provider unavailable, please try again"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func decodeBytes(b []byte, v any) error {
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrap(err, "decode body")
	}
	return nil
}
