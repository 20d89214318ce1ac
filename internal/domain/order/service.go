package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
)

// LineRequest is a client-submitted cart line. Client prices are ignored.
type LineRequest struct {
	ProductID   string
	Quantity    int
	Description string
}

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	Items          []LineRequest
	Shipping       Shipping
	PaymentMethod  string
	CouponCode     string
	IdempotencyKey string
}

// CreateResult is the outcome of CreateOrder. RedirectURL is set only for
// redirect payment methods.
type CreateResult struct {
	Order       *Order
	Method      payment.Method
	RedirectURL string
	// Replayed is true when the order already existed for the idempotency key.
	Replayed bool
}

// Config holds hosted checkout settings. "{orderId}" in the URLs is
// replaced with the order identifier.
type Config struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

// NewID returns a new order identifier.
func NewID() string {
	return "ORD-" + ulid.Make().String()
}

// Service encapsulates order placement and payment outcome handling.
type Service struct {
	products   product.Repository
	promotions promotion.Validator
	orders     Repository
	gateway    Gateway
	cfg        Config

	newID func() string
	now   func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	promotions promotion.Validator,
	orders Repository,
	gateway Gateway,
	cfg Config,
) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "SAR"
	}
	return &Service{
		products:   products,
		promotions: promotions,
		orders:     orders,
		gateway:    gateway,
		cfg:        cfg,
		newID:      NewID,
		now:        time.Now,
	}
}

// CreateOrder validates the request, prices it from the catalog, applies a
// promotion, persists the order and, for redirect methods, opens a hosted
// checkout session.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	method, err := validate(req)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.orders.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		switch {
		case err == nil:
			return s.replay(existing)
		case !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "lookup idempotency key")
		}
	}

	items, lines, err := s.price(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	subtotal := promotion.Subtotal(lines)
	discount := decimal.Zero
	code := strings.ToUpper(strings.TrimSpace(req.CouponCode))
	if code != "" {
		d, err := s.promotions.Evaluate(ctx, code, lines)
		if err != nil {
			return nil, errors.Wrap(err, "evaluate promotion")
		}
		discount = d.Amount
	}

	// Total = subtotal - discount, floored at zero and rounded to 2 decimal places.
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	now := s.now()
	o := &Order{
		ID:             s.newID(),
		Status:         initialStatus(method),
		PaymentMethod:  method.Key(),
		Items:          items,
		Shipping:       trimShipping(req.Shipping),
		Subtotal:       subtotal.Round(2),
		Discount:       discount.Round(2),
		Total:          total.Round(2),
		CouponCode:     code,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			// Lost a race with a concurrent request carrying the same key.
			existing, getErr := s.orders.GetByIdempotencyKey(ctx, req.IdempotencyKey)
			if getErr != nil {
				return nil, errors.Wrap(getErr, "lookup idempotency key")
			}
			return s.replay(existing)
		}
		return nil, errors.Wrap(err, "create order")
	}

	if payment.IsRedirect(method) {
		return s.openSession(ctx, o, method)
	}
	return &CreateResult{Order: o, Method: method}, nil
}

func (s *Service) openSession(ctx context.Context, o *Order, method payment.Method) (*CreateResult, error) {
	sess, err := s.gateway.CreateSession(ctx, SessionRequest{
		OrderID:    o.ID,
		Method:     o.PaymentMethod,
		Amount:     o.Total,
		Currency:   s.cfg.Currency,
		Email:      o.Shipping.Email,
		SuccessURL: expandURL(s.cfg.SuccessURL, o.ID),
		CancelURL:  expandURL(s.cfg.CancelURL, o.ID),
	})
	if err == nil && sess.URL == "" {
		err = errors.New("gateway returned no redirect url")
	}
	if err != nil {
		// The order row stays for audit; it can never be paid. Failing it
		// releases the coupon use.
		if uerr := s.orders.UpdateStatus(ctx, o.ID, StatusPending, StatusFailed); uerr != nil {
			err = errors.Wrapf(err, "mark failed: %v", uerr)
		}
		o.Status = StatusFailed
		return nil, &GatewayError{OrderID: o.ID, Err: err}
	}

	if err := s.orders.AttachPaymentSession(ctx, o.ID, sess.ID, sess.URL); err != nil {
		return nil, errors.Wrap(err, "attach payment session")
	}
	o.PaymentSessionID = sess.ID
	o.RedirectURL = sess.URL
	return &CreateResult{Order: o, Method: method, RedirectURL: sess.URL}, nil
}

func (s *Service) replay(o *Order) (*CreateResult, error) {
	method, err := payment.Parse(string(o.PaymentMethod))
	if err != nil {
		return nil, errors.Wrap(err, "stored order")
	}
	if o.Status == StatusFailed {
		return nil, &GatewayError{OrderID: o.ID, Err: errors.New("previous attempt failed")}
	}
	res := &CreateResult{Order: o, Method: method, Replayed: true}
	if payment.IsRedirect(method) {
		if o.RedirectURL == "" {
			return nil, &GatewayError{OrderID: o.ID, Err: errors.New("payment session not ready")}
		}
		res.RedirectURL = o.RedirectURL
	}
	return res, nil
}

// price fetches every requested product in one batch and builds priced items.
func (s *Service) price(ctx context.Context, reqItems []LineRequest) ([]Item, []promotion.Line, error) {
	ids := make([]string, len(reqItems))
	for i, it := range reqItems {
		ids[i] = it.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]Item, len(reqItems))
	lines := make([]promotion.Line, len(reqItems))
	for i, it := range reqItems {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
		items[i] = Item{
			ProductID:   p.ID,
			Name:        p.Name,
			UnitPrice:   p.Price,
			Quantity:    it.Quantity,
			ImageURL:    p.ImageURL,
			Description: strings.TrimSpace(it.Description),
		}
		lines[i] = promotion.Line{ProductID: p.ID, Price: p.Price, Quantity: it.Quantity}
	}
	return items, lines, nil
}

// HandlePaymentCallback applies a gateway outcome to the order owning the
// session. Repeated callbacks with the same outcome are no-ops.
func (s *Service) HandlePaymentCallback(ctx context.Context, sessionID string, outcome Status) (*Order, error) {
	if outcome != StatusPaid && outcome != StatusFailed {
		return nil, &ValidationError{Fields: []string{"status"}}
	}
	if sessionID == "" {
		return nil, &ValidationError{Fields: []string{"sessionId"}}
	}

	o, err := s.orders.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "get order by session")
	}
	if o.Status == outcome {
		return o, nil
	}
	if !o.Status.CanTransitionTo(outcome) {
		return nil, errors.Wrapf(ErrStatusConflict, "%s -> %s", o.Status, outcome)
	}
	if err := s.orders.UpdateStatus(ctx, o.ID, o.Status, outcome); err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	o.Status = outcome
	o.UpdatedAt = s.now()
	return o, nil
}

// GetOrder returns the order with the given id.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

func validate(req CreateRequest) (payment.Method, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: it.ProductID}
		}
	}
	if missing := req.Shipping.Missing(); len(missing) > 0 {
		return nil, &ValidationError{Fields: missing}
	}
	if !strings.Contains(req.Shipping.Email, "@") {
		return nil, &ValidationError{Fields: []string{"email"}}
	}
	method, err := payment.Parse(req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	return method, nil
}

func initialStatus(m payment.Method) Status {
	return payment.Match(m,
		func(payment.Redirect) Status { return StatusPending },
		func(payment.CashOnDelivery) Status { return StatusCashPending },
	)
}

func trimShipping(s Shipping) Shipping {
	return Shipping{
		FullName:   strings.TrimSpace(s.FullName),
		Address:    strings.TrimSpace(s.Address),
		City:       strings.TrimSpace(s.City),
		PostalCode: strings.TrimSpace(s.PostalCode),
		Phone:      strings.TrimSpace(s.Phone),
		Email:      strings.TrimSpace(s.Email),
	}
}

func expandURL(tmpl, orderID string) string {
	return strings.ReplaceAll(tmpl, "{orderId}", orderID)
}
