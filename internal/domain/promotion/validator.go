package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator checks a promo code against order lines.
type Validator interface {
	Evaluate(ctx context.Context, code string, lines []Line) (*Discount, error)
}

// RepoValidator implements Validator on top of a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by repo.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Evaluate looks up the promotion, checks its validity window and usage
// limit and computes the discount. It records nothing.
func (v *RepoValidator) Evaluate(ctx context.Context, code string, lines []Line) (*Discount, error) {
	p, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			return nil, ErrInvalidCode
		}
		return nil, errors.Wrap(err, "lookup promotion")
	}

	now := v.now()
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return nil, ErrExpired
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return nil, ErrExpired
	}
	if p.MaxUses > 0 && p.Uses >= p.MaxUses {
		return nil, ErrUsageLimitReached
	}

	d, err := Apply(p, lines)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
