// Command catalog-ingest loads supplier catalog feeds into the products
// table. Feeds are gzip-compressed JSONL files, one product record per line,
// keyed by SKU. Suppliers are noisy: a SKU is trusted only when at least two
// independent feeds list it.
//
// Feeds are large, so membership is tracked with one bloom filter per feed
// built in a first pass; a second pass collects records whose SKU tests
// positive in another feed's filter.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ozsapka/shop-api/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
)

const upsertProductSQL = `INSERT INTO products (id, name, color, category, price)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name, color = EXCLUDED.color,
		category = EXCLUDED.category, price = EXCLUDED.price`

// feedRecord is one line of a supplier feed.
type feedRecord struct {
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Color    string          `json:"color"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
}

func (r feedRecord) valid() bool {
	return r.SKU != "" && r.Name != "" && !r.Price.IsNegative()
}

// fileResult holds the candidate records found in a single feed during
// pass 2, with a bitmask of the feeds each SKU was seen in.
type fileResult struct {
	records map[string]feedRecord
	seenIn  map[string]uint
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing supplier *.gz feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list feeds")
	}
	sort.Strings(files)
	if len(files) < 2 {
		return errors.Errorf("need at least 2 feeds to cross-check, found %d in %s", len(files), dataDir)
	}

	// Pass 1: build one bloom filter of SKUs per feed, concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("feeds", len(files)))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: collect records whose SKU appears in 2+ feeds.
	slog.Info("pass 2: collecting cross-checked records")

	trusted, err := findTrustedRecords(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find trusted records")
	}

	slog.Info("trusted products found", slog.Int("count", len(trusted)))

	if len(trusted) == 0 {
		slog.Info("no products to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeProducts(ctx, pool, trusted); err != nil {
		return errors.Wrap(err, "write products to database")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per feed, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
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

		if err := streamFeed(ctx, path, func(rec feedRecord) {
			filter.AddString(rec.SKU)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress",
					slog.Int("feed", idx+1),
					slog.Uint64("records", count),
				)
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for feed %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_records", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findTrustedRecords re-streams each feed and checks SKUs against OTHER
// feeds' bloom filters. A record is trusted when its SKU appears in 2 or
// more feeds; the first record seen for a SKU wins.
func findTrustedRecords(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]feedRecord, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findCandidatesInFeed(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge bitmasks from all feeds.
	merged := make(map[string]uint)
	records := make(map[string]feedRecord)
	for _, r := range results {
		for sku, mask := range r.seenIn {
			merged[sku] |= mask
			if _, ok := records[sku]; !ok {
				records[sku] = r.records[sku]
			}
		}
	}

	var trusted []feedRecord
	for sku, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			trusted = append(trusted, records[sku])
		}
	}
	sort.Slice(trusted, func(i, j int) bool { return trusted[i].SKU < trusted[j].SKU })

	return trusted, nil
}

func findCandidatesInFeed(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		seenIn := make(map[string]uint)
		records := make(map[string]feedRecord)
		fileBit := uint(1) << uint(idx)
		var count uint64

		if err := streamFeed(ctx, path, func(rec feedRecord) {
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("feed", idx+1),
					slog.Uint64("records", count),
				)
			}

			// A SKU from this feed is a candidate when any OTHER feed's
			// filter also claims it.
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(rec.SKU) {
					seenIn[rec.SKU] |= fileBit | uint(1)<<uint(j)
					if _, ok := records[rec.SKU]; !ok {
						records[rec.SKU] = rec
					}
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan feed %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_records", count),
			slog.Int("candidates", len(seenIn)),
		)

		results[idx] = fileResult{records: records, seenIn: seenIn}
		return nil
	}
}

// streamFeed opens a gzip-compressed JSONL feed and calls fn for each
// well-formed record. Malformed lines are skipped, not fatal.
func streamFeed(ctx context.Context, path string, fn func(rec feedRecord)) error {
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

		var rec feedRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil || !rec.valid() {
			continue
		}
		fn(rec)
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeProducts upserts all trusted records into the products table, SKU as
// the product ID.
func writeProducts(ctx context.Context, pool *pgxpool.Pool, records []feedRecord) error {
	slog.Info("writing products to database", slog.Int("count", len(records)))

	for i, rec := range records {
		if _, err := pool.Exec(ctx, upsertProductSQL,
			rec.SKU, rec.Name, rec.Color, rec.Category, rec.Price,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", rec.SKU)
		}

		if (i+1)%100 == 0 || i+1 == len(records) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(records)))
		}
	}

	return nil
}
