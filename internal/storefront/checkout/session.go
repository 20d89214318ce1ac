// Package checkout drives a shopper from a filled cart to a placed order.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/payment"
)

// State is a checkout step.
type State string

const (
	StateCollectingShipping State = "collecting_shipping"
	StateSelectingPayment   State = "selecting_payment"
	StateReviewingOrder     State = "reviewing_order"
	// StateSubmitting is held while the order request is in flight.
	StateSubmitting State = "submitting"
	// StateRedirected is terminal: the shopper continues on the hosted page.
	StateRedirected State = "redirected"
	// StateConfirmed is terminal: a cash on delivery order exists.
	StateConfirmed State = "confirmed"
)

// Terminal reports whether s ends the checkout. Only Reset leaves it.
func (s State) Terminal() bool {
	return s == StateRedirected || s == StateConfirmed
}

var (
	// ErrEmptyCart is returned when placing an order with no cart lines.
	ErrEmptyCart = errors.New("cart is empty")
)

// TransitionError is returned when an operation is not allowed in the
// current state.
type TransitionError struct {
	From State
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.From)
}

// ValidationError lists input fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid checkout input: " + strings.Join(e.Fields, ", ")
}

// ShippingInfo is the delivery contact collected for one checkout.
type ShippingInfo struct {
	FullName   string `json:"fullName"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

// Normalize returns s with surrounding whitespace removed from every field.
func (s ShippingInfo) Normalize() ShippingInfo {
	return ShippingInfo{
		FullName:   strings.TrimSpace(s.FullName),
		Address:    strings.TrimSpace(s.Address),
		City:       strings.TrimSpace(s.City),
		PostalCode: strings.TrimSpace(s.PostalCode),
		Phone:      strings.TrimSpace(s.Phone),
		Email:      strings.TrimSpace(s.Email),
	}
}

// Validate requires every field and an email containing "@".
func (s ShippingInfo) Validate() error {
	s = s.Normalize()
	var fields []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"fullName", s.FullName},
		{"address", s.Address},
		{"city", s.City},
		{"postalCode", s.PostalCode},
		{"phone", s.Phone},
		{"email", s.Email},
	} {
		if f.value == "" {
			fields = append(fields, f.name)
		}
	}
	if s.Email != "" && !strings.Contains(s.Email, "@") {
		fields = append(fields, "email")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Session is the persisted checkout state of one shopper.
type Session struct {
	State         State        `json:"state"`
	Shipping      ShippingInfo `json:"shipping"`
	PaymentMethod payment.Key  `json:"paymentMethod,omitempty"`
	CouponCode    string       `json:"couponCode,omitempty"`
	// AttemptKey is the idempotency key of the next placement. It survives
	// transport failures so a retry cannot create a second order.
	AttemptKey  string    `json:"attemptKey,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
	OrderID     string    `json:"orderId,omitempty"`
	RedirectURL string    `json:"redirectUrl,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewSession returns a session at the first step.
func NewSession() *Session {
	return &Session{State: StateCollectingShipping}
}

// SessionStore loads and saves sessions by owner. Load returns NewSession
// for an unknown owner.
type SessionStore interface {
	LoadSession(ctx context.Context, owner string) (*Session, error)
	SaveSession(ctx context.Context, owner string, s *Session) error
}

// MemorySessions keeps sessions in process memory.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]Session
}

var _ SessionStore = (*MemorySessions)(nil)

// NewMemorySessions creates an empty MemorySessions.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]Session)}
}

// LoadSession implements SessionStore.
func (m *MemorySessions) LoadSession(_ context.Context, owner string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[owner]
	if !ok {
		return NewSession(), nil
	}
	return &s, nil
}

// SaveSession implements SessionStore.
func (m *MemorySessions) SaveSession(_ context.Context, owner string, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[owner] = *s
	return nil
}
