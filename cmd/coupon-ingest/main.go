// Command coupon-ingest cross-validates partner coupon feeds and loads the
// agreed codes as store-wide coupons. A code is accepted only when it appears
// in at least two of the gzip-compressed feed files; single-feed codes are
// treated as partner noise.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/soukmarket/commerce-core/internal/domain/promotion"
	"github.com/soukmarket/commerce-core/internal/storage/postgres"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	numFeeds      = 3
	progressEvery = 10_000_000
	minCodeLen    = 6
	maxCodeLen    = 12
)

// feedResult holds candidate codes found in a single feed during pass 2.
// The mask records which feeds the code was seen in.
type feedResult struct {
	candidates map[string]uint
}

func main() {
	var (
		dataDir     string
		databaseURL string
		percentOff  int64
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing feedN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Int64Var(&percentOff, "percent-off", 10, "discount percentage for ingested codes")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, percentOff); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, percentOff int64) error {
	feeds := make([]string, numFeeds)
	for i := range numFeeds {
		feeds[i] = filepath.Join(dataDir, fmt.Sprintf("feed%d.gz", i+1))
	}
	for _, f := range feeds {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check feed %s", f)
		}
	}

	// Pass 1: build one bloom filter per feed concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("feeds", numFeeds))

	filters, err := buildBloomFilters(ctx, feeds)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: find codes appearing in 2+ feeds.
	slog.Info("pass 2: cross-checking feeds")

	codes, err := findAgreedCodes(ctx, feeds, filters)
	if err != nil {
		return errors.Wrap(err, "find agreed codes")
	}

	slog.Info("agreed codes found", slog.Int("count", len(codes)))

	if len(codes) == 0 {
		slog.Info("no codes to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	promos := promotion.NewCatalog(
		postgres.NewCouponRepository(pool),
		postgres.NewSaleRepository(pool),
	)
	if err := writeCoupons(ctx, promos, codes, percentOff); err != nil {
		return errors.Wrap(err, "write coupons to database")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per feed, concurrently.
func buildBloomFilters(ctx context.Context, feeds []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		g.Go(buildFilterForFeed(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFeed(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) >= minCodeLen && len(code) <= maxCodeLen {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress",
						slog.Int("feed", idx+1),
						slog.Uint64("codes", count),
					)
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for feed %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_codes", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findAgreedCodes re-streams each feed and checks codes against the OTHER
// feeds' bloom filters. A code is agreed when 2+ feeds carry it.
func findAgreedCodes(ctx context.Context, feeds []string, filters []*bloom.BloomFilter) ([]string, error) {
	results := make([]feedResult, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		g.Go(findCandidatesInFeed(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r.candidates {
			merged[code] |= mask
		}
	}

	var agreed []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			agreed = append(agreed, code)
		}
	}

	return agreed, nil
}

func findCandidatesInFeed(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []feedResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		feedBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) < minCodeLen || len(code) > maxCodeLen {
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("feed", idx+1),
					slog.Uint64("codes", count),
				)
			}

			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(code) {
					candidates[code] |= feedBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan feed %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_codes", count),
			slog.Int("candidates", len(candidates)),
		)

		results[idx] = feedResult{candidates: candidates}
		return nil
	}
}

// streamGzFile opens a gzip-compressed feed and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
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
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeCoupons creates a store-wide percentage coupon for every agreed code.
// Codes already present in the catalog are skipped.
func writeCoupons(ctx context.Context, promos *promotion.Catalog, codes []string, percentOff int64) error {
	slog.Info("writing coupons to database", slog.Int("count", len(codes)))

	value := decimal.NewFromInt(percentOff)
	written := 0
	for i, code := range codes {
		c := promotion.Coupon{
			Code:         code,
			DiscountType: promotion.DiscountPercentage,
			Value:        value,
			Scope:        promotion.ScopeStore,
		}

		err := promos.CreateCoupon(ctx, &c)
		switch {
		case errors.Is(err, promotion.ErrCodeTaken):
			// already ingested on a previous run
		case err != nil:
			return errors.Wrapf(err, "create coupon %s", code)
		default:
			written++
		}

		if (i+1)%100 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("processed", i+1), slog.Int("written", written))
		}
	}

	return nil
}
