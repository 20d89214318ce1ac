package paymentgw

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.Gateway = (*Sandbox)(nil)

// Sandbox is an in-process gateway for local development. It never calls out
// and returns a session URL on PublicURL.
type Sandbox struct {
	PublicURL string
}

// CreateSession returns a fake session pointing at the sandbox pay page.
func (s *Sandbox) CreateSession(_ context.Context, req order.SessionRequest) (*order.Session, error) {
	id := "sbx_" + strings.ToLower(ulid.Make().String())
	return &order.Session{
		ID:  id,
		URL: strings.TrimRight(s.PublicURL, "/") + "/sandbox/pay/" + id + "?order=" + req.OrderID,
	}, nil
}
