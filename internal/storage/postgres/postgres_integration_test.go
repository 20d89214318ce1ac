//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
	"github.com/xenking/storefront/internal/outbox"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:17-alpine",
		tcpostgres.WithDatabase("storefront"),
		tcpostgres.WithUsername("storefront"),
		tcpostgres.WithPassword("storefront"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("connection string: %v", err)
	}
	if err := RunMigrations(dsn); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}

	code := m.Run()

	testPool.Close()
	if err := testcontainers.TerminateContainer(ctr); err != nil {
		log.Printf("terminate postgres: %v", err)
	}
	os.Exit(code)
}

func seedProduct(t *testing.T, id string, stock int, threshold *int) {
	t.Helper()
	err := NewSeedRepository(testPool).UpsertProduct(context.Background(), product.Product{
		ID: id, SKU: "SKU-" + id, Name: "Product " + id, Price: decimal.RequireFromString("10.00"),
		Category: "Test", Stock: stock, MinStockThreshold: threshold,
	})
	require.NoError(t, err)
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h/db", migrateURL("postgres://u:p@h/db"))
	assert.Equal(t, "pgx5://u:p@h/db", migrateURL("postgresql://u:p@h/db"))
}

func TestProductRepository(t *testing.T) {
	ctx := context.Background()
	seedProduct(t, "prod-a", 3, nil)
	seedProduct(t, "prod-b", 0, nil)

	repo := NewProductRepository(testPool)
	p, err := repo.GetByID(ctx, "prod-a")
	require.NoError(t, err)
	assert.Equal(t, "SKU-prod-a", p.SKU)
	assert.True(t, decimal.RequireFromString("10").Equal(p.Price))

	_, err = repo.GetByID(ctx, "nope")
	require.ErrorIs(t, err, product.ErrNotFound)

	got, err := repo.GetByIDs(ctx, []string{"prod-a", "prod-b", "nope"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestOrderRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	o := &order.Order{
		ID:             order.NewID(),
		Status:         order.StatusPending,
		PaymentMethod:  payment.KeyCard,
		Items:          []order.Item{{ProductID: "prod-a", Name: "A", UnitPrice: decimal.RequireFromString("10"), Quantity: 2}},
		Shipping:       order.Shipping{FullName: "N", Address: "A", City: "C", PostalCode: "P", Phone: "1", Email: "a@b.c"},
		Subtotal:       decimal.RequireFromString("20"),
		Discount:       decimal.Zero,
		Total:          decimal.RequireFromString("20"),
		IdempotencyKey: "idem-" + time.Now().Format(time.RFC3339Nano),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, repo.Create(ctx, o))

	dup := *o
	dup.ID = order.NewID()
	require.ErrorIs(t, repo.Create(ctx, &dup), order.ErrDuplicateIdempotencyKey)

	byKey, err := repo.GetByIdempotencyKey(ctx, o.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, o.ID, byKey.ID)
	assert.Equal(t, o.Items[0].Name, byKey.Items[0].Name)
	assert.Equal(t, "a@b.c", byKey.Shipping.Email)

	require.NoError(t, repo.AttachPaymentSession(ctx, o.ID, "sess-"+o.ID, "https://pay/x"))
	bySession, err := repo.GetBySessionID(ctx, "sess-"+o.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://pay/x", bySession.RedirectURL)

	require.NoError(t, repo.UpdateStatus(ctx, o.ID, order.StatusPending, order.StatusPaid))
	require.ErrorIs(t, repo.UpdateStatus(ctx, o.ID, order.StatusPending, order.StatusFailed), order.ErrStatusConflict)
	require.ErrorIs(t, repo.UpdateStatus(ctx, "ORD-missing", order.StatusPending, order.StatusPaid), order.ErrNotFound)

	var events []string
	n, err := NewOutboxStore(testPool).Drain(ctx, 100, func(_ context.Context, batch []outbox.Record) error {
		for _, r := range batch {
			if r.AggregateID == o.ID {
				events = append(events, r.EventType)
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2)
	assert.Equal(t, []string{"order.created", "order.paid"}, events)
}

func TestPromotionRepository(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, NewSeedRepository(testPool).UpsertPromotion(ctx, promotion.Promotion{
		Code: "ONCE", Kind: promotion.KindFixed, Value: decimal.NewFromInt(5), MaxUses: 1,
	}))
	repo := NewPromotionRepository(testPool)

	p, err := repo.FindByCode(ctx, "once")
	require.NoError(t, err)
	assert.Equal(t, promotion.KindFixed, p.Kind)

	_, err = repo.FindByCode(ctx, "missing")
	require.ErrorIs(t, err, promotion.ErrInvalidCode)
}

func TestOrderRepository_CouponUses(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, NewSeedRepository(testPool).UpsertPromotion(ctx, promotion.Promotion{
		Code: "TWICE", Kind: promotion.KindFixed, Value: decimal.NewFromInt(5), MaxUses: 2,
	}))
	repo := NewOrderRepository(testPool)
	uses := func() int {
		p, err := NewPromotionRepository(testPool).FindByCode(ctx, "TWICE")
		require.NoError(t, err)
		return p.Uses
	}
	newOrder := func(key string) *order.Order {
		now := time.Now().UTC()
		return &order.Order{
			ID:             order.NewID(),
			Status:         order.StatusPending,
			PaymentMethod:  payment.KeyCard,
			Items:          []order.Item{{ProductID: "prod-a", Name: "A", UnitPrice: decimal.RequireFromString("10"), Quantity: 1}},
			Shipping:       order.Shipping{FullName: "N", Address: "A", City: "C", PostalCode: "P", Phone: "1", Email: "a@b.c"},
			Subtotal:       decimal.RequireFromString("10"),
			Discount:       decimal.RequireFromString("5"),
			Total:          decimal.RequireFromString("5"),
			CouponCode:     "TWICE",
			IdempotencyKey: key,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}

	first := newOrder("coupon-1")
	require.NoError(t, repo.Create(ctx, first))
	assert.Equal(t, 1, uses())

	// A duplicate key rolls back before the coupon is touched.
	dup := newOrder("coupon-1")
	require.ErrorIs(t, repo.Create(ctx, dup), order.ErrDuplicateIdempotencyKey)
	assert.Equal(t, 1, uses())

	require.NoError(t, repo.Create(ctx, newOrder("coupon-2")))
	assert.Equal(t, 2, uses())

	exhausted := newOrder("coupon-3")
	require.ErrorIs(t, repo.Create(ctx, exhausted), promotion.ErrUsageLimitReached)
	_, err := repo.GetByID(ctx, exhausted.ID)
	require.ErrorIs(t, err, order.ErrNotFound)

	require.NoError(t, repo.UpdateStatus(ctx, first.ID, order.StatusPending, order.StatusFailed))
	assert.Equal(t, 1, uses())
	require.NoError(t, repo.Create(ctx, newOrder("coupon-4")))
	assert.Equal(t, 2, uses())
}

func TestAPIKeyRepository(t *testing.T) {
	ctx := context.Background()
	hash := auth.HashKey([]byte("pepper"), "raw")
	require.NoError(t, NewSeedRepository(testPool).UpsertAPIKey(ctx, auth.APIKeyInfo{
		ID: "ops", KeyHash: hash, Name: "Ops", Scopes: []string{auth.ScopeInventoryRead},
	}))

	k, err := NewAPIKeyRepository(testPool).FindByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.ScopeInventoryRead}, k.Scopes)

	var lastUsed *time.Time
	require.NoError(t, testPool.QueryRow(ctx, `SELECT last_used_at FROM api_keys WHERE id = 'ops'`).Scan(&lastUsed))
	require.NotNil(t, lastUsed)

	_, err = NewAPIKeyRepository(testPool).FindByHash(ctx, "nope")
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestPaymentMethodRepository(t *testing.T) {
	ctx := context.Background()
	seed := NewSeedRepository(testPool)
	require.NoError(t, seed.UpsertPaymentMethod(ctx, payment.Listing{Key: payment.KeyCashOnDelivery, Type: "Cash on delivery", Position: 2, Enabled: true}))
	require.NoError(t, seed.UpsertPaymentMethod(ctx, payment.Listing{Key: payment.KeyCard, Type: "Card", Position: 1, Enabled: true}))
	require.NoError(t, seed.UpsertPaymentMethod(ctx, payment.Listing{Key: payment.KeyTamara, Type: "Tamara", Position: 3, Enabled: false}))

	got, err := NewPaymentMethodRepository(testPool).ListMethods(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, payment.KeyCard, got[0].Key)
}

func TestInventoryRepository_Adjust(t *testing.T) {
	ctx := context.Background()
	threshold := 5
	seedProduct(t, "inv-1", 10, &threshold)

	svc := inventory.NewService(NewInventoryRepository(testPool))
	adj, err := svc.AdjustStock(ctx, inventory.AdjustRequest{
		ProductID: "inv-1", Mode: inventory.ModeSubtract, Quantity: 7, Reason: "damaged", Actor: "ops", RequestID: "r-inv-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, adj.Record.Stock)
	assert.Equal(t, inventory.StatusLowStock, adj.Record.Status())
	assert.Equal(t, -7, adj.Movement.QuantityChange)

	again, err := svc.AdjustStock(ctx, inventory.AdjustRequest{
		ProductID: "inv-1", Mode: inventory.ModeSubtract, Quantity: 7, Reason: "damaged", Actor: "ops", RequestID: "r-inv-1",
	})
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, adj.Movement.ID, again.Movement.ID)

	history, err := svc.History(ctx, "inv-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)

	low, err := svc.ListStock(ctx, inventory.Filter{Status: inventory.StatusLowStock, Search: "inv-1"})
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "inv-1", low[0].ProductID)
}
