// Command stock-import applies warehouse stock feeds as "set" adjustments.
//
// Each feed is a gzip-compressed file of "SKU,QUANTITY" lines. A SKU listed
// by more than one feed is ambiguous and skipped. Every applied level is
// recorded in the inventory ledger under a request id derived from --batch,
// so rerunning a batch is a no-op.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const pageSize = 500

func main() {
	var (
		feeds       string
		databaseURL string
		batch       string
		capacity    uint
		workers     int
		dryRun      bool
	)

	flag.StringVar(&feeds, "feeds", "data/stock/*.gz", "glob of gzip-compressed stock feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&batch, "batch", "", "import batch id; reruns with the same id are no-ops")
	flag.UintVar(&capacity, "expected-skus", 1_000_000, "expected SKUs per feed, sizes the bloom filters")
	flag.IntVar(&workers, "workers", 8, "concurrent adjustments")
	flag.BoolVar(&dryRun, "dry-run", false, "report the plan without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if batch == "" && !dryRun {
		slog.Error("batch id is required: set --batch")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, feeds, databaseURL, batch, capacity, workers, dryRun); err != nil {
		slog.Error("stock import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("stock import completed successfully")
}

func run(ctx context.Context, pattern, databaseURL, batch string, capacity uint, workers int, dryRun bool) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrap(err, "glob feeds")
	}
	if len(files) == 0 {
		return errors.Errorf("no feeds match %q", pattern)
	}
	if len(files) > maxFeeds {
		return errors.Errorf("too many feeds: %d (max %d)", len(files), maxFeeds)
	}
	slices.Sort(files)

	slog.Info("pass 1: building bloom filters", slog.Int("feeds", len(files)))
	filters, err := buildFilters(ctx, files, capacity)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: collecting stock levels")
	levels, conflicts, err := plan(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "plan import")
	}
	slices.Sort(conflicts)
	for _, sku := range conflicts {
		slog.Warn("sku listed by several feeds, skipped", slog.String("sku", sku))
	}
	slog.Info("plan ready", slog.Int("skus", len(levels)), slog.Int("conflicts", len(conflicts)))

	if dryRun || len(levels) == 0 {
		return nil
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	svc := inventory.NewService(postgres.NewInventoryRepository(pool))
	return apply(ctx, svc, batch, levels, workers)
}

// apply resolves SKUs to products and sets each stock level through the
// inventory ledger.
func apply(ctx context.Context, svc *inventory.Service, batch string, levels map[string]int, workers int) error {
	products, err := productsBySKU(ctx, svc)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	var applied, replayed, unknown atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for sku, qty := range levels {
		productID, ok := products[sku]
		if !ok {
			unknown.Add(1)
			slog.Warn("unknown sku", slog.String("sku", sku))
			continue
		}
		g.Go(func() error {
			adj, err := svc.AdjustStock(ctx, inventory.AdjustRequest{
				ProductID: productID,
				Mode:      inventory.ModeSet,
				Quantity:  qty,
				Reason:    "warehouse feed import",
				Actor:     "stock-import",
				RequestID: requestID(batch, sku),
			})
			if err != nil {
				return errors.Wrapf(err, "set stock of %s", sku)
			}
			if adj.Replayed {
				replayed.Add(1)
			} else {
				applied.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()

	slog.Info("import summary",
		slog.Int64("applied", applied.Load()),
		slog.Int64("replayed", replayed.Load()),
		slog.Int64("unknown", unknown.Load()),
	)
	return err
}

func productsBySKU(ctx context.Context, svc *inventory.Service) (map[string]string, error) {
	out := make(map[string]string)
	for offset := 0; ; offset += pageSize {
		recs, err := svc.ListStock(ctx, inventory.Filter{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if r.SKU != "" {
				out[r.SKU] = r.ProductID
			}
		}
		if len(recs) < pageSize {
			return out, nil
		}
	}
}

func requestID(batch, sku string) string {
	return "stock-import:" + batch + ":" + sku
}
