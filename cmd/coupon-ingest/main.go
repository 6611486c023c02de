package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-checkout/internal/storage/postgres"
)

const (
	bloomFPR      = 0.0000001
	progressEvery = 1_000_000
	minCodeLen    = 6
	maxCodeLen    = 50
)

// dedup remembers codes already queued. A false positive drops a new code;
// at bloomFPR that is a handful of codes per hundred million.
type dedup struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

// add reports whether code was not seen before.
func (d *dedup) add(code string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.filter.TestOrAddString(code)
}

type stats struct {
	read       atomic.Uint64
	invalid    atomic.Uint64
	duplicates atomic.Uint64
	inserted   atomic.Int64
}

func main() {
	var (
		pattern     string
		template    string
		databaseURL string
		capacity    uint
		batchSize   int
	)

	flag.StringVar(&pattern, "files", "data/*.gz", "glob of gzip files with one coupon code per line")
	flag.StringVar(&template, "template", "", "code of the coupon every imported code is cloned from")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&capacity, "expected-codes", 10_000_000, "expected number of distinct codes (bloom filter sizing)")
	flag.IntVar(&batchSize, "batch-size", 5000, "codes per INSERT")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if template == "" {
		slog.Error("template coupon code is required: set --template")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, pattern, template, databaseURL, capacity, batchSize); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, pattern, template, databaseURL string, capacity uint, batchSize int) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrapf(err, "glob %s", pattern)
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s", pattern)
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	coupons := postgres.NewStore(pool).Coupons()
	seen := &dedup{filter: bloom.NewWithEstimates(capacity, bloomFPR)}
	var st stats

	slog.Info("importing codes", slog.Int("files", len(files)), slog.String("template", template))

	codes := make(chan string, batchSize)
	g, gctx := errgroup.WithContext(ctx)

	// Readers stream every file concurrently into one queue.
	var readers sync.WaitGroup
	for i, f := range files {
		readers.Add(1)
		g.Go(func() error {
			defer readers.Done()
			return readFile(gctx, i, f, seen, &st, codes)
		})
	}
	g.Go(func() error {
		readers.Wait()
		close(codes)
		return nil
	})

	// A single writer batches inserts so clones never race on the same code.
	g.Go(func() error {
		batch := make([]string, 0, batchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			n, err := coupons.CloneCodes(gctx, template, batch)
			if err != nil {
				return errors.Wrap(err, "clone codes")
			}
			st.inserted.Add(n)
			batch = batch[:0]
			return nil
		}
		for code := range codes {
			batch = append(batch, code)
			if len(batch) == batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("import summary",
		slog.Uint64("read", st.read.Load()),
		slog.Uint64("invalid", st.invalid.Load()),
		slog.Uint64("duplicates", st.duplicates.Load()),
		slog.Int64("inserted", st.inserted.Load()),
	)
	return nil
}

func readFile(ctx context.Context, idx int, path string, seen *dedup, st *stats, out chan<- string) error {
	var count uint64
	err := streamGzFile(ctx, path, func(line string) error {
		st.read.Add(1)
		code, ok := normalizeCode(line)
		if !ok {
			st.invalid.Add(1)
			return nil
		}
		if !seen.add(code) {
			st.duplicates.Add(1)
			return nil
		}

		count++
		if count%progressEvery == 0 {
			slog.Info("read progress", slog.Int("file", idx+1), slog.Uint64("codes", count))
		}

		select {
		case out <- code:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return errors.Wrapf(err, "read file %d", idx+1)
	}

	slog.Info("file complete", slog.String("path", path), slog.Uint64("queued", count))
	return nil
}

// normalizeCode upper-cases a code and rejects blank, short, long or
// non-alphanumeric lines. Codes are matched case-insensitively at checkout.
func normalizeCode(line string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(line))
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return "", false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '-' {
			return "", false
		}
	}
	return code, true
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
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
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
