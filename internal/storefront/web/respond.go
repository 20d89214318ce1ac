package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/storefront/cart"
	"github.com/xenking/storefront/internal/storefront/checkout"
	"github.com/xenking/storefront/internal/storefront/orderapi"
)

const maxBodyBytes = 64 << 10

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

func mapError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		cartVErr     *cart.ValidationError
		checkoutVErr *checkout.ValidationError
		transErr     *checkout.TransitionError
	)
	switch {
	case errors.As(err, &cartVErr):
		writeError(w, http.StatusBadRequest, cartVErr.Error())
	case errors.As(err, &checkoutVErr):
		writeError(w, http.StatusBadRequest, checkoutVErr.Error())
	case errors.Is(err, payment.ErrUnknownMethod):
		writeError(w, http.StatusBadRequest, payment.ErrUnknownMethod.Error())
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, checkout.ErrEmptyCart.Error())
	case errors.As(err, &transErr):
		writeError(w, http.StatusConflict, transErr.Error())
	case errors.Is(err, cart.ErrLineNotFound):
		writeError(w, http.StatusNotFound, cart.ErrLineNotFound.Error())
	case errors.Is(err, orderapi.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
