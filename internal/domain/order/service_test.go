package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]product.Product
	getErr error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockPromotions struct {
	discount *promotion.Discount
	err      error
	gotCode  string
}

func (m *mockPromotions) Evaluate(_ context.Context, code string, _ []promotion.Line) (*promotion.Discount, error) {
	m.gotCode = code
	return m.discount, m.err
}

// memOrders counts coupon uses the way the storage layer does: one per
// created order, given back when the order fails.
type memOrders struct {
	byID      map[string]*Order
	uses      map[string]int
	createErr error
	updates   []string
	// keyMisses makes the next idempotency key lookups miss, as when a
	// concurrent request inserts between lookup and create.
	keyMisses int
}

func newMemOrders() *memOrders {
	return &memOrders{byID: map[string]*Order{}, uses: map[string]int{}}
}

func (m *memOrders) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.byID {
		if o.IdempotencyKey != "" && existing.IdempotencyKey == o.IdempotencyKey {
			return ErrDuplicateIdempotencyKey
		}
	}
	cp := *o
	m.byID[o.ID] = &cp
	if o.CouponCode != "" {
		m.uses[o.CouponCode]++
	}
	return nil
}

func (m *memOrders) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) GetByIdempotencyKey(_ context.Context, key string) (*Order, error) {
	if m.keyMisses > 0 {
		m.keyMisses--
		return nil, ErrNotFound
	}
	for _, o := range m.byID {
		if o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memOrders) GetBySessionID(_ context.Context, sessionID string) (*Order, error) {
	for _, o := range m.byID {
		if o.PaymentSessionID == sessionID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memOrders) AttachPaymentSession(_ context.Context, id, sessionID, url string) error {
	o, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	o.PaymentSessionID = sessionID
	o.RedirectURL = url
	return nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id string, from, to Status) error {
	o, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrStatusConflict
	}
	o.Status = to
	if to == StatusFailed && o.CouponCode != "" {
		m.uses[o.CouponCode]--
	}
	m.updates = append(m.updates, string(from)+"->"+string(to))
	return nil
}

type mockGateway struct {
	session *Session
	err     error
	calls   []SessionRequest
}

func (m *mockGateway) CreateSession(_ context.Context, req SessionRequest) (*Session, error) {
	m.calls = append(m.calls, req)
	return m.session, m.err
}

// --- Helpers ---

var testNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID}
}

func validShipping() Shipping {
	return Shipping{
		FullName:   "Sara Ali",
		Address:    "12 King Fahd Rd",
		City:       "Riyadh",
		PostalCode: "11564",
		Phone:      "+966500000000",
		Email:      "sara@example.com",
	}
}

type fixture struct {
	svc      *Service
	orders   *memOrders
	gateway  *mockGateway
	promos   *mockPromotions
	products *mockProductRepo
}

func newFixture() *fixture {
	f := &fixture{
		orders:  newMemOrders(),
		gateway: &mockGateway{session: &Session{ID: "sess_1", URL: "https://pay.example/s/sess_1"}},
		promos:  &mockPromotions{},
		products: newProductRepo(
			product.Product{ID: "1", Name: "Linen Shirt", Price: decimal.RequireFromString("120.00"), ImageURL: "shirt.jpg"},
			product.Product{ID: "2", Name: "Cotton Socks", Price: decimal.RequireFromString("15.50")},
		),
	}
	f.svc = NewService(f.products, f.promos, f.orders, f.gateway, Config{
		SuccessURL: "https://shop.example/orders/{orderId}/confirmation",
		CancelURL:  "https://shop.example/checkout",
	})
	f.svc.newID = func() string { return "ORD-TEST" }
	f.svc.now = func() time.Time { return testNow }
	return f
}

// --- Tests ---

func TestCreateOrder_CashOnDelivery(t *testing.T) {
	f := newFixture()

	res, err := f.svc.CreateOrder(context.Background(), CreateRequest{
		Items:         []LineRequest{{ProductID: "1", Quantity: 2, Description: "Size: M"}},
		Shipping:      validShipping(),
		PaymentMethod: "cod",
	})
	require.NoError(t, err)

	assert.Equal(t, "ORD-TEST", res.Order.ID)
	assert.Equal(t, StatusCashPending, res.Order.Status)
	assert.Empty(t, res.RedirectURL)
	assert.False(t, payment.IsRedirect(res.Method))
	assert.Empty(t, f.gateway.calls, "cash on delivery must not call the gateway")
	assert.True(t, decimal.RequireFromString("240").Equal(res.Order.Total))

	stored, err := f.orders.GetByID(context.Background(), "ORD-TEST")
	require.NoError(t, err)
	assert.Equal(t, StatusCashPending, stored.Status)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "Linen Shirt", stored.Items[0].Name)
	assert.Equal(t, "Size: M", stored.Items[0].Description)
}

func TestCreateOrder_Redirect(t *testing.T) {
	f := newFixture()

	res, err := f.svc.CreateOrder(context.Background(), CreateRequest{
		Items:         []LineRequest{{ProductID: "1", Quantity: 1}, {ProductID: "2", Quantity: 2}},
		Shipping:      validShipping(),
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://pay.example/s/sess_1", res.RedirectURL)
	assert.Equal(t, StatusPending, res.Order.Status)

	require.Len(t, f.gateway.calls, 1)
	call := f.gateway.calls[0]
	assert.Equal(t, "ORD-TEST", call.OrderID)
	assert.Equal(t, payment.KeyCard, call.Method)
	assert.Equal(t, "SAR", call.Currency)
	assert.Equal(t, "https://shop.example/orders/ORD-TEST/confirmation", call.SuccessURL)
	assert.True(t, decimal.RequireFromString("151.00").Equal(call.Amount), "got %s", call.Amount)

	stored, err := f.orders.GetByID(context.Background(), "ORD-TEST")
	require.NoError(t, err)
	assert.Equal(t, "sess_1", stored.PaymentSessionID)
	assert.Equal(t, res.RedirectURL, stored.RedirectURL)
}

func TestCreateOrder_PricesFromCatalog(t *testing.T) {
	f := newFixture()
	f.promos.discount = &promotion.Discount{Amount: decimal.RequireFromString("20")}

	res, err := f.svc.CreateOrder(context.Background(), CreateRequest{
		Items:         []LineRequest{{ProductID: "1", Quantity: 1}},
		Shipping:      validShipping(),
		PaymentMethod: "cod",
		CouponCode:    " save20 ",
	})
	require.NoError(t, err)

	assert.Equal(t, "SAVE20", f.promos.gotCode)
	assert.Equal(t, "SAVE20", res.Order.CouponCode)
	assert.True(t, decimal.RequireFromString("120").Equal(res.Order.Subtotal))
	assert.True(t, decimal.RequireFromString("20").Equal(res.Order.Discount))
	assert.True(t, decimal.RequireFromString("100").Equal(res.Order.Total))
}

func TestCreateOrder_DiscountFloorsTotal(t *testing.T) {
	f := newFixture()
	f.promos.discount = &promotion.Discount{Amount: decimal.RequireFromString("500")}

	res, err := f.svc.CreateOrder(context.Background(), CreateRequest{
		Items:         []LineRequest{{ProductID: "2", Quantity: 1}},
		Shipping:      validShipping(),
		PaymentMethod: "cod",
		CouponCode:    "HUGE",
	})
	require.NoError(t, err)
	assert.True(t, res.Order.Total.IsZero())
}

func TestCreateOrder_Validation(t *testing.T) {
	incomplete := validShipping()
	incomplete.City = "  "
	badEmail := validShipping()
	badEmail.Email = "sara.example.com"

	tests := []struct {
		name   string
		req    CreateRequest
		check  func(t *testing.T, err error)
		noCall bool
	}{
		{
			name: "empty items",
			req:  CreateRequest{Shipping: validShipping(), PaymentMethod: "cod"},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrEmptyItems)
			},
		},
		{
			name: "zero quantity",
			req:  CreateRequest{Items: []LineRequest{{ProductID: "1"}}, Shipping: validShipping(), PaymentMethod: "cod"},
			check: func(t *testing.T, err error) {
				var qe *InvalidQuantityError
				require.ErrorAs(t, err, &qe)
				assert.Equal(t, "1", qe.ProductID)
			},
		},
		{
			name: "incomplete shipping",
			req:  CreateRequest{Items: []LineRequest{{ProductID: "1", Quantity: 1}}, Shipping: incomplete, PaymentMethod: "cod"},
			check: func(t *testing.T, err error) {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, []string{"city"}, ve.Fields)
			},
		},
		{
			name: "email without at sign",
			req:  CreateRequest{Items: []LineRequest{{ProductID: "1", Quantity: 1}}, Shipping: badEmail, PaymentMethod: "cod"},
			check: func(t *testing.T, err error) {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, []string{"email"}, ve.Fields)
			},
		},
		{
			name: "unknown payment method",
			req:  CreateRequest{Items: []LineRequest{{ProductID: "1", Quantity: 1}}, Shipping: validShipping(), PaymentMethod: "paypal"},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, payment.ErrUnknownMethod)
			},
		},
		{
			name: "unknown product",
			req:  CreateRequest{Items: []LineRequest{{ProductID: "404", Quantity: 1}}, Shipping: validShipping(), PaymentMethod: "card"},
			check: func(t *testing.T, err error) {
				var pe *ProductNotFoundError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, "404", pe.ProductID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.CreateOrder(context.Background(), tt.req)
			tt.check(t, err)
			assert.Empty(t, f.orders.byID, "no order may be persisted")
			assert.Empty(t, f.gateway.calls)
		})
	}
}

func TestCreateOrder_PromotionError(t *testing.T) {
	f := newFixture()
	f.promos.err = promotion.ErrExpired

	_, err := f.svc.CreateOrder(context.Background(), CreateRequest{
		Items:         []LineRequest{{ProductID: "1", Quantity: 1}},
		Shipping:      validShipping(),
		PaymentMethod: "cod",
		CouponCode:    "OLD",
	})
	require.ErrorIs(t, err, promotion.ErrExpired)
	assert.Empty(t, f.orders.byID)
}

func TestCreateOrder_GatewayFailureMarksFailed(t *testing.T) {
	f := newFixture()
	f.gateway.session = nil
	f.gateway.err = errors.New("connection refused")

	_, err := f.svc.CreateOrder(context.Background(), CreateRequest{
		Items:         []LineRequest{{ProductID: "1", Quantity: 1}},
		Shipping:      validShipping(),
		PaymentMethod: "tabby",
	})
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "ORD-TEST", ge.OrderID)

	stored, err := f.orders.GetByID(context.Background(), "ORD-TEST")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, []string{"pending->failed"}, f.orders.updates)
}

func TestCreateOrder_CouponUseOnlyForLiveOrders(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture)
		method   string
		wantErr  bool
		wantUses int
	}{
		{
			name:     "placed",
			method:   "card",
			wantUses: 1,
		},
		{
			name:    "create fails",
			setup:   func(f *fixture) { f.orders.createErr = errors.New("db down") },
			method:  "cod",
			wantErr: true,
		},
		{
			name: "gateway fails",
			setup: func(f *fixture) {
				f.gateway.session = nil
				f.gateway.err = errors.New("connection refused")
			},
			method:  "card",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.promos.discount = &promotion.Discount{Amount: decimal.RequireFromString("10")}
			if tt.setup != nil {
				tt.setup(f)
			}

			_, err := f.svc.CreateOrder(context.Background(), CreateRequest{
				Items:         []LineRequest{{ProductID: "1", Quantity: 1}},
				Shipping:      validShipping(),
				PaymentMethod: tt.method,
				CouponCode:    "save10",
			})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantUses, f.orders.uses["SAVE10"])
		})
	}
}

func TestCreateOrder_ConcurrentSameKeyCountsOneUse(t *testing.T) {
	f := newFixture()
	f.promos.discount = &promotion.Discount{Amount: decimal.RequireFromString("10")}
	req := CreateRequest{
		Items:          []LineRequest{{ProductID: "1", Quantity: 1}},
		Shipping:       validShipping(),
		PaymentMethod:  "cod",
		CouponCode:     "SAVE10",
		IdempotencyKey: "key-race",
	}

	_, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	f.orders.keyMisses = 1
	f.svc.newID = func() string { return "ORD-LOSER" }
	res, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, "ORD-TEST", res.Order.ID)
	assert.Equal(t, 1, f.orders.uses["SAVE10"])
}

func TestCreateOrder_GatewayWithoutURL(t *testing.T) {
	f := newFixture()
	f.gateway.session = &Session{ID: "sess_x"}

	_, err := f.svc.CreateOrder(context.Background(), CreateRequest{
		Items:         []LineRequest{{ProductID: "1", Quantity: 1}},
		Shipping:      validShipping(),
		PaymentMethod: "mada",
	})
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
}

func TestCreateOrder_Idempotent(t *testing.T) {
	f := newFixture()
	req := CreateRequest{
		Items:          []LineRequest{{ProductID: "1", Quantity: 1}},
		Shipping:       validShipping(),
		PaymentMethod:  "card",
		IdempotencyKey: "key-1",
	}

	first, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	f.svc.newID = func() string { return "ORD-SECOND" }
	second, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.RedirectURL, second.RedirectURL)
	assert.Len(t, f.gateway.calls, 1, "replay must not open a second session")
	assert.Len(t, f.orders.byID, 1)
}

func TestCreateOrder_IdempotentAfterFailure(t *testing.T) {
	f := newFixture()
	f.gateway.err = errors.New("down")
	req := CreateRequest{
		Items:          []LineRequest{{ProductID: "1", Quantity: 1}},
		Shipping:       validShipping(),
		PaymentMethod:  "card",
		IdempotencyKey: "key-2",
	}

	_, err := f.svc.CreateOrder(context.Background(), req)
	require.Error(t, err)

	_, err = f.svc.CreateOrder(context.Background(), req)
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Len(t, f.gateway.calls, 1)
}

func TestHandlePaymentCallback(t *testing.T) {
	tests := []struct {
		name    string
		initial Status
		outcome Status
		want    Status
		wantErr error
	}{
		{name: "pending to paid", initial: StatusPending, outcome: StatusPaid, want: StatusPaid},
		{name: "pending to failed", initial: StatusPending, outcome: StatusFailed, want: StatusFailed},
		{name: "repeated paid is a no-op", initial: StatusPaid, outcome: StatusPaid, want: StatusPaid},
		{name: "paid cannot fail", initial: StatusPaid, outcome: StatusFailed, wantErr: ErrStatusConflict},
		{name: "failed cannot be paid", initial: StatusFailed, outcome: StatusPaid, wantErr: ErrStatusConflict},
		{name: "cash order rejects callbacks", initial: StatusCashPending, outcome: StatusPaid, wantErr: ErrStatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.orders.byID["ORD-1"] = &Order{ID: "ORD-1", Status: tt.initial, PaymentSessionID: "sess_9"}

			o, err := f.svc.HandlePaymentCallback(context.Background(), "sess_9", tt.outcome)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.initial, f.orders.byID["ORD-1"].Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, o.Status)
			assert.Equal(t, tt.want, f.orders.byID["ORD-1"].Status)
		})
	}
}

func TestHandlePaymentCallback_Invalid(t *testing.T) {
	f := newFixture()

	_, err := f.svc.HandlePaymentCallback(context.Background(), "sess_9", StatusCashPending)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = f.svc.HandlePaymentCallback(context.Background(), "unknown", StatusPaid)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.GetOrder(context.Background(), "ORD-NOPE")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNewID(t *testing.T) {
	id := NewID()
	assert.Len(t, id, len("ORD-")+26)
	assert.NotEqual(t, id, NewID())
}

func TestEncodeEvent(t *testing.T) {
	o := &Order{
		ID:            "ORD-1",
		Status:        StatusPaid,
		PaymentMethod: payment.KeyCard,
		Total:         decimal.RequireFromString("10.5"),
		Items:         []Item{{ProductID: "1", Quantity: 2}},
	}
	got := string(EncodeEvent(EventForStatus(o.Status), o, testNow))
	assert.JSONEq(t, `{
		"type":"order.paid","orderId":"ORD-1","status":"paid","paymentMethod":"card",
		"total":"10.50","items":[{"id":"1","quantity":2}],"at":"2026-05-01T10:00:00Z"
	}`, got)
}
