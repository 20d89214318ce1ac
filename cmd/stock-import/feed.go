package main

import (
	"bufio"
	"context"
	"log/slog"
	"math/bits"
	"os"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/inventory"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
	// maxFeeds is the width of the per-SKU feed bitmask.
	maxFeeds = 64
)

// entry is one feed line: the absolute stock level of a SKU.
type entry struct {
	SKU      string
	Quantity int
}

// parseLine parses "SKU,QUANTITY". Blank lines and lines starting with '#'
// are skipped (ok is false).
func parseLine(line string) (e entry, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return entry{}, false, nil
	}
	sku, qty, found := strings.Cut(line, ",")
	sku = strings.TrimSpace(sku)
	if !found || sku == "" {
		return entry{}, false, errors.Errorf("malformed line %q", line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(qty))
	if err != nil || n < 0 || n > inventory.MaxStock {
		return entry{}, false, errors.Errorf("invalid quantity in %q", line)
	}
	return entry{SKU: sku, Quantity: n}, true, nil
}

// streamFeed opens a gzip-compressed feed and calls fn for each entry.
func streamFeed(ctx context.Context, path string, fn func(entry)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, ok, err := parseLine(scanner.Text())
		if err != nil {
			return errors.Wrapf(err, "%s:%d", path, lineNo)
		}
		if ok {
			fn(e)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// buildFilters creates one bloom filter of SKUs per feed, concurrently.
func buildFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			var count uint64
			if err := streamFeed(ctx, path, func(e entry) {
				filter.AddString(e.SKU)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("feed", path), slog.Uint64("lines", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			slog.Info("pass 1 complete", slog.String("feed", path), slog.Uint64("lines", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// feedResult holds the entries of one feed and the bitmask of SKUs that
// may also appear in another feed.
type feedResult struct {
	levels     map[string]int
	candidates map[string]uint64
}

// plan reads every feed and returns the stock levels to apply plus the SKUs
// claimed by more than one feed. Conflicting SKUs are left out of levels.
// Within a feed the last line for a SKU wins.
func plan(ctx context.Context, files []string, filters []*bloom.BloomFilter) (levels map[string]int, conflicts []string, err error) {
	if len(files) > maxFeeds {
		return nil, nil, errors.Errorf("too many feeds: %d (max %d)", len(files), maxFeeds)
	}
	if len(filters) != len(files) {
		return nil, nil, errors.Errorf("%d filters for %d feeds", len(filters), len(files))
	}
	results := make([]feedResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			r := feedResult{levels: map[string]int{}, candidates: map[string]uint64{}}
			bit := uint64(1) << uint(i)
			if err := streamFeed(gctx, path, func(e entry) {
				r.levels[e.SKU] = e.Quantity
				for j, f := range filters {
					if j != i && f.TestString(e.SKU) {
						r.candidates[e.SKU] |= bit
						break
					}
				}
			}); err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			slog.Info("pass 2 complete",
				slog.String("feed", path),
				slog.Int("skus", len(r.levels)),
				slog.Int("candidates", len(r.candidates)),
			)
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// Bloom filters have no false negatives, so a SKU present in two feeds
	// is a candidate in both; a false positive sets a single bit.
	merged := make(map[string]uint64)
	for _, r := range results {
		for sku, mask := range r.candidates {
			merged[sku] |= mask
		}
	}
	conflicting := make(map[string]bool)
	for sku, mask := range merged {
		if bits.OnesCount64(mask) >= 2 {
			conflicting[sku] = true
			conflicts = append(conflicts, sku)
		}
	}

	levels = make(map[string]int)
	for _, r := range results {
		for sku, qty := range r.levels {
			if !conflicting[sku] {
				levels[sku] = qty
			}
		}
	}
	return levels, conflicts, nil
}
