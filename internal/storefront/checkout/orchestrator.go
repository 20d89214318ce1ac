package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/storefront/cart"
	"github.com/xenking/storefront/internal/storefront/orderapi"
	"github.com/xenking/storefront/pkg/idempotency"
)

// OrderPlacer submits orders to order-api.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req orderapi.PlaceOrderRequest) (*orderapi.PlaceOrderResponse, error)
}

var _ OrderPlacer = (*orderapi.Client)(nil)

// errIncompleteResponse marks a 2xx response without the field the
// selected method requires.
var errIncompleteResponse = errors.New("order response missing expected field")

// PlaceError is returned when an order could not be placed. The session
// is back in StateReviewingOrder with LastError set and the cart untouched.
type PlaceError struct {
	Message string
	Session *Session
	Err     error
}

func (e *PlaceError) Error() string { return "place order: " + e.Err.Error() }

func (e *PlaceError) Unwrap() error { return e.Err }

// Result is the outcome of a successful placement.
type Result struct {
	Session *Session
	Method  payment.Method
	// RedirectURL is set for redirect methods.
	RedirectURL string
	// OrderID is set for cash on delivery.
	OrderID string
	// CartCleared is false when the cart could not be cleared after the
	// order was created. The order stands either way.
	CartCleared bool
}

// Config tunes the Orchestrator.
type Config struct {
	// SubmitTimeout is how long a session may stay in StateSubmitting
	// before another placement is allowed.
	SubmitTimeout time.Duration
	// ClearRetries bounds the retries of the post-order cart clear.
	ClearRetries uint64
}

// Orchestrator runs the checkout state machine for every shopper.
type Orchestrator struct {
	sessions SessionStore
	carts    *cart.Store
	orders   OrderPlacer
	cfg      Config

	now        func() time.Time
	newKey     func() string
	newBackOff func() backoff.BackOff
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(sessions SessionStore, carts *cart.Store, orders OrderPlacer, cfg Config) *Orchestrator {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = time.Minute
	}
	if cfg.ClearRetries == 0 {
		cfg.ClearRetries = 3
	}
	return &Orchestrator{
		sessions: sessions,
		carts:    carts,
		orders:   orders,
		cfg:      cfg,
		now:      time.Now,
		newKey:   idempotency.New,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
	}
}

// View returns the shopper's session.
func (o *Orchestrator) View(ctx context.Context, owner string) (*Session, error) {
	s, err := o.sessions.LoadSession(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "load session")
	}
	return s, nil
}

// SubmitShipping stores shipping info and moves to payment selection.
// It is also how a shopper edits shipping from a later step.
func (o *Orchestrator) SubmitShipping(ctx context.Context, owner string, info ShippingInfo) (*Session, error) {
	return o.transition(ctx, owner, "submit shipping",
		[]State{StateCollectingShipping, StateSelectingPayment, StateReviewingOrder},
		func(s *Session) error {
			if err := info.Validate(); err != nil {
				return err
			}
			s.Shipping = info.Normalize()
			s.State = StateSelectingPayment
			// A different address is a different order.
			s.AttemptKey = ""
			return nil
		})
}

// SelectPayment selects a method and moves to review.
func (o *Orchestrator) SelectPayment(ctx context.Context, owner, key string) (*Session, error) {
	return o.transition(ctx, owner, "select payment",
		[]State{StateSelectingPayment, StateReviewingOrder},
		func(s *Session) error {
			m, err := payment.Parse(key)
			if err != nil {
				return err
			}
			s.PaymentMethod = m.Key()
			s.State = StateReviewingOrder
			s.AttemptKey = o.newKey()
			return nil
		})
}

// SetCoupon sets or clears (empty code) the promo code sent with the order.
func (o *Orchestrator) SetCoupon(ctx context.Context, owner, code string) (*Session, error) {
	return o.transition(ctx, owner, "set coupon",
		[]State{StateCollectingShipping, StateSelectingPayment, StateReviewingOrder},
		func(s *Session) error {
			s.CouponCode = strings.ToUpper(strings.TrimSpace(code))
			if s.State == StateReviewingOrder {
				s.AttemptKey = o.newKey()
			}
			return nil
		})
}

// EditShipping goes back to the shipping step keeping entered data.
func (o *Orchestrator) EditShipping(ctx context.Context, owner string) (*Session, error) {
	return o.transition(ctx, owner, "edit shipping",
		[]State{StateSelectingPayment, StateReviewingOrder},
		func(s *Session) error {
			s.State = StateCollectingShipping
			return nil
		})
}

// EditPayment goes back from review to payment selection.
func (o *Orchestrator) EditPayment(ctx context.Context, owner string) (*Session, error) {
	return o.transition(ctx, owner, "edit payment",
		[]State{StateReviewingOrder},
		func(s *Session) error {
			s.State = StateSelectingPayment
			return nil
		})
}

// Reset starts a new checkout. The cart is not touched.
func (o *Orchestrator) Reset(ctx context.Context, owner string) (*Session, error) {
	s := NewSession()
	s.UpdatedAt = o.now().UTC()
	if err := o.sessions.SaveSession(ctx, owner, s); err != nil {
		return nil, errors.Wrap(err, "save session")
	}
	return s, nil
}

// PlaceOrder submits the cart. It runs only from StateReviewingOrder and
// never retries the submission itself.
//
// On success the cart is cleared, including for redirect methods whose
// payment is still outstanding. On failure the session returns to review
// with LastError set and a *PlaceError is returned.
func (o *Orchestrator) PlaceOrder(ctx context.Context, owner string) (*Result, error) {
	s, err := o.sessions.LoadSession(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "load session")
	}
	if !o.canPlace(s) {
		return nil, &TransitionError{From: s.State, Op: "place order"}
	}
	method, err := payment.Parse(string(s.PaymentMethod))
	if err != nil {
		return nil, &TransitionError{From: s.State, Op: "place order"}
	}
	c, err := o.carts.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	if s.AttemptKey == "" {
		s.AttemptKey = o.newKey()
	}
	s.State = StateSubmitting
	s.LastError = ""
	s.UpdatedAt = o.now().UTC()
	if err := o.sessions.SaveSession(ctx, owner, s); err != nil {
		return nil, errors.Wrap(err, "save session")
	}

	resp, err := o.orders.PlaceOrder(ctx, orderapi.PlaceOrderRequest{
		CartItems:       LineItems(c.Lines),
		ShippingAddress: shippingAddress(s.Shipping),
		PaymentMethod:   method.Key(),
		CouponCode:      s.CouponCode,
		IdempotencyKey:  s.AttemptKey,
	})
	if err == nil {
		err = expectFields(method, resp)
	}
	// The outcome is recorded even when the shopper went away.
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		return nil, o.fail(ctx, owner, s, err)
	}

	res := &Result{Session: s, Method: method}
	payment.Match(method,
		func(payment.Redirect) struct{} {
			s.State, s.RedirectURL = StateRedirected, resp.URL
			res.RedirectURL = resp.URL
			return struct{}{}
		},
		func(payment.CashOnDelivery) struct{} {
			s.State, s.OrderID = StateConfirmed, resp.OrderID
			res.OrderID = resp.OrderID
			return struct{}{}
		},
	)
	res.CartCleared = o.clearCart(ctx, owner)

	lg := zctx.From(ctx)
	s.AttemptKey = ""
	s.UpdatedAt = o.now().UTC()
	if err := o.sessions.SaveSession(ctx, owner, s); err != nil {
		// A later placement replays the same attempt key and gets this order.
		lg.Warn("Save checkout session failed", zap.Error(err))
	}
	lg.Info("Order placed",
		zap.String("payment_method", string(method.Key())),
		zap.String("order_id", res.OrderID),
		zap.Bool("cart_cleared", res.CartCleared),
	)
	return res, nil
}

func (o *Orchestrator) canPlace(s *Session) bool {
	switch s.State {
	case StateReviewingOrder:
		return true
	case StateSubmitting:
		return o.now().Sub(s.UpdatedAt) > o.cfg.SubmitTimeout
	default:
		return false
	}
}

func (o *Orchestrator) fail(ctx context.Context, owner string, s *Session, cause error) error {
	var apiErr *orderapi.APIError
	// order-api answered, so the same key would replay the same failure.
	if errors.As(cause, &apiErr) || errors.Is(cause, errIncompleteResponse) {
		s.AttemptKey = o.newKey()
	}
	s.State = StateReviewingOrder
	s.LastError = orderapi.PublicMessage(cause)
	s.UpdatedAt = o.now().UTC()

	zctx.From(ctx).Warn("Place order failed",
		zap.String("payment_method", string(s.PaymentMethod)),
		zap.Error(cause),
	)
	if err := o.sessions.SaveSession(ctx, owner, s); err != nil {
		cause = errors.Wrapf(cause, "save session: %v", err)
	}
	return &PlaceError{Message: s.LastError, Session: s, Err: cause}
}

func (o *Orchestrator) clearCart(ctx context.Context, owner string) bool {
	b := backoff.WithContext(backoff.WithMaxRetries(o.newBackOff(), o.cfg.ClearRetries), ctx)
	err := backoff.Retry(func() error { return o.carts.Clear(ctx, owner) }, b)
	if err != nil {
		zctx.From(ctx).Error("Clear cart after order failed", zap.Error(err))
		return false
	}
	return true
}

func (o *Orchestrator) transition(ctx context.Context, owner, op string, from []State, apply func(*Session) error) (*Session, error) {
	s, err := o.sessions.LoadSession(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "load session")
	}
	allowed := false
	for _, st := range from {
		if s.State == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, &TransitionError{From: s.State, Op: op}
	}
	if err := apply(s); err != nil {
		return nil, err
	}
	s.LastError = ""
	s.UpdatedAt = o.now().UTC()
	if err := o.sessions.SaveSession(ctx, owner, s); err != nil {
		return nil, errors.Wrap(err, "save session")
	}
	return s, nil
}

func expectFields(m payment.Method, resp *orderapi.PlaceOrderResponse) error {
	return payment.Match(m,
		func(payment.Redirect) error {
			if resp.URL == "" {
				return errors.Wrap(errIncompleteResponse, "url")
			}
			return nil
		},
		func(payment.CashOnDelivery) error {
			if resp.OrderID == "" {
				return errors.Wrap(errIncompleteResponse, "orderId")
			}
			return nil
		},
	)
}

// LineItems converts cart lines to order line items. The description joins
// the non-empty of "Size: <s>" and "Color: <c>" with ", ".
func LineItems(lines []cart.Line) []orderapi.LineItem {
	out := make([]orderapi.LineItem, len(lines))
	for i, l := range lines {
		var parts []string
		if s := strings.TrimSpace(l.Size); s != "" {
			parts = append(parts, "Size: "+s)
		}
		if c := strings.TrimSpace(l.Color); c != "" {
			parts = append(parts, "Color: "+c)
		}
		out[i] = orderapi.LineItem{
			ID:          l.ProductID,
			Name:        l.Name,
			Price:       l.UnitPrice,
			Quantity:    l.Quantity,
			Image:       l.ImageURL,
			Description: strings.TrimSpace(strings.Join(parts, ", ")),
		}
	}
	return out
}

func shippingAddress(s ShippingInfo) orderapi.ShippingAddress {
	return orderapi.ShippingAddress{
		FullName:   s.FullName,
		Address:    s.Address,
		City:       s.City,
		PostalCode: s.PostalCode,
		Phone:      s.Phone,
		Email:      s.Email,
	}
}
