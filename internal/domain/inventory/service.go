package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	maxListLimit        = 500
)

// Service applies stock adjustments and serves inventory views.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates an inventory Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// AdjustStock updates the product's stock and records the paired movement in
// one transaction. A request id already recorded returns the stored movement
// without applying the adjustment again.
func (s *Service) AdjustStock(ctx context.Context, req AdjustRequest) (*Adjustment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	req.Reason = strings.TrimSpace(req.Reason)

	var out Adjustment
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		rec, err := tx.LockRecord(ctx, req.ProductID)
		if err != nil {
			return errors.Wrap(err, "lock record")
		}

		if req.RequestID != "" {
			prev, err := tx.MovementByRequestID(ctx, req.RequestID)
			switch {
			case err == nil:
				if prev.ProductID != req.ProductID {
					return &ValidationError{Fields: []string{"requestId"}}
				}
				out = Adjustment{Record: *rec, Movement: *prev, Replayed: true}
				return nil
			case !errors.Is(err, ErrNotFound):
				return errors.Wrap(err, "lookup request id")
			}
		}

		next, change, err := Compute(rec.Stock, req.Mode, req.Quantity)
		if err != nil {
			return err
		}

		now := s.now()
		if err := tx.SetStock(ctx, rec.ProductID, next, now); err != nil {
			return errors.Wrap(err, "set stock")
		}
		m := Movement{
			ProductID:      rec.ProductID,
			QuantityChange: change,
			StockAfter:     next,
			Reason:         req.Reason,
			Actor:          req.Actor,
			RequestID:      req.RequestID,
			CreatedAt:      now,
		}
		if err := tx.InsertMovement(ctx, &m); err != nil {
			return errors.Wrap(err, "insert movement")
		}

		rec.Stock = next
		rec.UpdatedAt = now
		out = Adjustment{Record: *rec, Movement: m}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListStock returns records matching f ordered by name.
func (s *Service) ListStock(ctx context.Context, f Filter) ([]Record, error) {
	if f.Limit <= 0 || f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Search = strings.TrimSpace(f.Search)
	recs, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list stock")
	}
	return recs, nil
}

// History returns the newest movements of a product. limit defaults to 20
// and is capped at 100.
func (s *Service) History(ctx context.Context, productID string, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	if _, err := s.repo.Get(ctx, productID); err != nil {
		return nil, errors.Wrap(err, "get record")
	}
	ms, err := s.repo.Movements(ctx, productID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list movements")
	}
	return ms, nil
}
