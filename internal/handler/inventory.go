package handler

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/pkg/idempotency"
)

type stockRecordResponse struct {
	ProductID         string    `json:"productId"`
	SKU               string    `json:"sku"`
	Name              string    `json:"name"`
	Category          string    `json:"category"`
	CurrentStock      int       `json:"currentStock"`
	MinStockThreshold *int      `json:"minStockThreshold"`
	StockStatus       string    `json:"stockStatus"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type movementResponse struct {
	ID             int64     `json:"id"`
	ProductID      string    `json:"productId"`
	QuantityChange int       `json:"quantityChange"`
	StockAfter     int       `json:"stockAfter"`
	Reason         string    `json:"reason"`
	Actor          string    `json:"actor"`
	RequestID      string    `json:"requestId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type listInventoryResponse struct {
	Items  []stockRecordResponse `json:"items"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type adjustRequest struct {
	Mode      string `json:"mode"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
	RequestID string `json:"requestId"`
}

type adjustResponse struct {
	Record   stockRecordResponse `json:"record"`
	Movement movementResponse    `json:"movement"`
	Replayed bool                `json:"replayed"`
}

type movementsResponse struct {
	Items []movementResponse `json:"items"`
}

// ListInventory returns stock records filtered by category, status and search.
func (h *Handler) ListInventory(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	recs, err := h.inventory.ListStock(r.Context(), f)
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	items := make([]stockRecordResponse, len(recs))
	for i, rec := range recs {
		items[i] = recordToResponse(rec)
	}
	writeJSON(w, http.StatusOK, listInventoryResponse{Items: items, Limit: f.Limit, Offset: f.Offset})
}

// ExportInventory streams the filtered page as a CSV attachment.
func (h *Handler) ExportInventory(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	recs, err := h.inventory.ListStock(r.Context(), f)
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := inventory.WriteCSV(&buf, recs); err != nil {
		h.mapError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+inventory.ExportFilename(h.now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// AdjustStock applies an adjustment attributed to the calling API key.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = idempotency.Key(r)
	}
	var actor string
	if k, ok := auth.KeyFrom(r.Context()); ok {
		actor = k.Name
	}

	adj, err := h.inventory.AdjustStock(r.Context(), inventory.AdjustRequest{
		ProductID: chi.URLParam(r, "id"),
		Mode:      inventory.Mode(req.Mode),
		Quantity:  req.Quantity,
		Reason:    req.Reason,
		Actor:     actor,
		RequestID: requestID,
	})
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	if !adj.Replayed {
		h.stockAdjustments.Add(r.Context(), 1, metric.WithAttributes(attribute.String("mode", req.Mode)))
		zctx.From(r.Context()).Info("Stock adjusted",
			zap.String("product_id", adj.Record.ProductID),
			zap.String("mode", req.Mode),
			zap.Int("change", adj.Movement.QuantityChange),
			zap.Int("stock", adj.Record.Stock),
		)
	}
	writeJSON(w, http.StatusOK, adjustResponse{
		Record:   recordToResponse(adj.Record),
		Movement: movementToResponse(adj.Movement),
		Replayed: adj.Replayed,
	})
}

// ListMovements returns the newest movements of a product.
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	ms, err := h.inventory.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	items := make([]movementResponse, len(ms))
	for i, m := range ms {
		items[i] = movementToResponse(m)
	}
	writeJSON(w, http.StatusOK, movementsResponse{Items: items})
}

func parseFilter(w http.ResponseWriter, r *http.Request) (inventory.Filter, bool) {
	q := r.URL.Query()
	f := inventory.Filter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
	}
	if s := q.Get("status"); s != "" {
		st, ok := inventory.ParseStatus(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid status")
			return f, false
		}
		f.Status = st
	}
	var err error
	if f.Limit, err = intQuery(r, "limit"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return f, false
	}
	if f.Offset, err = intQuery(r, "offset"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return f, false
	}
	return f, true
}

func intQuery(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func recordToResponse(rec inventory.Record) stockRecordResponse {
	return stockRecordResponse{
		ProductID:         rec.ProductID,
		SKU:               rec.SKU,
		Name:              rec.Name,
		Category:          rec.Category,
		CurrentStock:      rec.Stock,
		MinStockThreshold: rec.MinStockThreshold,
		StockStatus:       string(rec.Status()),
		UpdatedAt:         rec.UpdatedAt,
	}
}

func movementToResponse(m inventory.Movement) movementResponse {
	return movementResponse{
		ID:             m.ID,
		ProductID:      m.ProductID,
		QuantityChange: m.QuantityChange,
		StockAfter:     m.StockAfter,
		Reason:         m.Reason,
		Actor:          m.Actor,
		RequestID:      m.RequestID,
		Timestamp:      m.CreatedAt,
	}
}
