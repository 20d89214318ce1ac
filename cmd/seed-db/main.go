package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID                string          `json:"id"`
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Price             decimal.Decimal `json:"price"`
	Category          string          `json:"category"`
	ImageURL          string          `json:"imageUrl"`
	Stock             int             `json:"stock"`
	MinStockThreshold *int            `json:"minStockThreshold"`
}

// paymentMethods is the display metadata of every supported method.
var paymentMethods = []payment.Listing{
	{Key: payment.KeyCard, Type: "Credit / Debit Card", Icon: "card.svg", Position: 1, Enabled: true},
	{Key: payment.KeyMada, Type: "mada", Icon: "mada.svg", Position: 2, Enabled: true},
	{Key: payment.KeyWallet, Type: "Mobile Wallet", Icon: "wallet.svg", Position: 3, Enabled: true},
	{Key: payment.KeyTabby, Type: "Tabby: Pay in 4", Icon: "tabby.svg", Position: 4, Enabled: true},
	{Key: payment.KeyTamara, Type: "Tamara: Split in 3", Icon: "tamara.svg", Position: 5, Enabled: true},
	{Key: payment.KeyCashOnDelivery, Type: "Cash on Delivery", Icon: "cod.svg", Position: 6, Enabled: true},
}

var promotions = []promotion.Promotion{
	{
		Code:        "HAPPYHOURS",
		Kind:        promotion.KindPercentage,
		Value:       decimal.NewFromInt(18),
		Description: "Happy Hours: 18% off entire order",
	},
	{
		Code:        "BUYGETONE",
		Kind:        promotion.KindFreeLowest,
		Value:       decimal.Zero,
		MinItems:    2,
		Description: "Buy one get one: lowest priced item free",
	},
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or ORDERS_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or ORDERS_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("ORDERS_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or ORDERS_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("ORDERS_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("running migrations")
	if err := postgres.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewSeedRepository(pool)

	if err := seedProducts(ctx, repo, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedPaymentMethods(ctx, repo); err != nil {
		return errors.Wrap(err, "seed payment methods")
	}
	if err := seedPromotions(ctx, repo); err != nil {
		return errors.Wrap(err, "seed promotions")
	}
	if err := seedAPIKey(ctx, repo, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

func seedProducts(ctx context.Context, repo *postgres.SeedRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := repo.UpsertProduct(ctx, product.Product{
			ID:                p.ID,
			SKU:               p.SKU,
			Name:              p.Name,
			Description:       p.Description,
			Price:             p.Price,
			Category:          p.Category,
			ImageURL:          p.ImageURL,
			Stock:             p.Stock,
			MinStockThreshold: p.MinStockThreshold,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedPaymentMethods(ctx context.Context, repo *postgres.SeedRepository) error {
	for _, m := range paymentMethods {
		if err := repo.UpsertPaymentMethod(ctx, m); err != nil {
			return err
		}
		slog.Info("upserted payment method", slog.String("key", string(m.Key)))
	}
	return nil
}

func seedPromotions(ctx context.Context, repo *postgres.SeedRepository) error {
	for _, p := range promotions {
		if err := repo.UpsertPromotion(ctx, p); err != nil {
			return err
		}
		slog.Info("upserted promotion", slog.String("code", p.Code), slog.String("description", p.Description))
	}
	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.SeedRepository, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	if err := repo.UpsertAPIKey(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Default admin key",
		Scopes:  []string{auth.ScopeInventoryRead, auth.ScopeInventoryWrite},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))
	return nil
}
