package handler

import (
	"net/http"

	"github.com/xenking/storefront/internal/domain/payment"
)

type paymentMethodResponse struct {
	Type string `json:"type"`
	Icon string `json:"icon"`
}

// ListPaymentMethods returns display metadata keyed by method key. Rows for
// keys outside the supported set are skipped.
func (h *Handler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	listings, err := h.methods.ListMethods(r.Context())
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	out := make(map[string]paymentMethodResponse, len(listings))
	for _, l := range listings {
		m, err := payment.Parse(string(l.Key))
		if err != nil || !l.Enabled {
			continue
		}
		out[string(m.Key())] = paymentMethodResponse{Type: l.Type, Icon: l.Icon}
	}
	writeJSON(w, http.StatusOK, out)
}
