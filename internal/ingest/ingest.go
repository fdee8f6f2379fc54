// Package ingest finds coupon codes shared by several gzip-compressed code
// lists and creates them as coupons.
//
// The search takes two passes. The first builds one bloom filter per file.
// The second re-reads every file and marks the codes that test positive in
// enough of the other files' filters. A code is accepted only when at least
// MinFiles files mark it.
package ingest

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/platter/internal/domain/coupon"
)

// Config controls the search.
type Config struct {
	// Files are the gzip-compressed lists, one code per line.
	Files []string
	// MinFiles is how many lists must contain a code. Defaults to 2.
	MinFiles int
	// MinLen and MaxLen bound the length of codes considered. Default 8 and 10.
	MinLen, MaxLen int
	// Capacity is the expected number of codes per file. Defaults to 1,000,000.
	Capacity uint
	// FPR is the bloom filter false positive rate. Defaults to 0.001.
	FPR float64
	// ProgressEvery logs progress every n codes. Zero disables progress logs.
	ProgressEvery uint64
}

func (c *Config) setDefaults() {
	if c.MinFiles <= 0 {
		c.MinFiles = 2
	}
	if c.MinLen <= 0 {
		c.MinLen = 8
	}
	if c.MaxLen <= 0 {
		c.MaxLen = 10
	}
	if c.Capacity == 0 {
		c.Capacity = 1_000_000
	}
	if c.FPR <= 0 {
		c.FPR = 0.001
	}
}

// Finder searches code lists.
type Finder struct {
	cfg Config
	lg  *zap.Logger
}

// NewFinder validates cfg and returns a Finder.
func NewFinder(cfg Config, lg *zap.Logger) (*Finder, error) {
	cfg.setDefaults()
	if len(cfg.Files) > bits.UintSize {
		return nil, errors.Errorf("at most %d files are supported", bits.UintSize)
	}
	if cfg.MinFiles > len(cfg.Files) {
		return nil, errors.Errorf("need at least %d files, got %d", cfg.MinFiles, len(cfg.Files))
	}
	if cfg.MinLen > cfg.MaxLen {
		return nil, errors.Errorf("min length %d exceeds max length %d", cfg.MinLen, cfg.MaxLen)
	}
	return &Finder{cfg: cfg, lg: lg}, nil
}

// Find returns the normalized codes found in at least MinFiles lists, sorted.
func (f *Finder) Find(ctx context.Context) ([]string, error) {
	f.lg.Info("Building bloom filters", zap.Int("files", len(f.cfg.Files)))
	filters, err := f.buildFilters(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	f.lg.Info("Finding shared codes", zap.Int("min_files", f.cfg.MinFiles))
	masks, err := f.findCandidates(ctx, filters)
	if err != nil {
		return nil, errors.Wrap(err, "find candidates")
	}

	// Merge bitmasks from all files.
	merged := make(map[string]uint)
	for _, m := range masks {
		for code, bit := range m {
			merged[code] |= bit
		}
	}
	var codes []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= f.cfg.MinFiles {
			codes = append(codes, code)
		}
	}
	slices.Sort(codes)

	f.lg.Info("Shared codes found", zap.Int("count", len(codes)))
	return codes, nil
}

func (f *Finder) buildFilters(ctx context.Context) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(f.cfg.Files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range f.cfg.Files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(f.cfg.Capacity, f.cfg.FPR)
			n, err := f.stream(ctx, i, path, "build", func(code string) {
				filter.AddString(code)
			})
			if err != nil {
				return errors.Wrapf(err, "file %s", path)
			}
			f.lg.Debug("Bloom filter built", zap.String("file", path), zap.Uint64("codes", n))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findCandidates marks, per file, the codes that test positive in at least
// MinFiles-1 other filters.
func (f *Finder) findCandidates(ctx context.Context, filters []*bloom.BloomFilter) ([]map[string]uint, error) {
	results := make([]map[string]uint, len(f.cfg.Files))
	need := f.cfg.MinFiles - 1

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range f.cfg.Files {
		g.Go(func() error {
			candidates := make(map[string]uint)
			fileBit := uint(1) << uint(i)
			_, err := f.stream(ctx, i, path, "scan", func(code string) {
				hits := 0
				for j, filter := range filters {
					if j != i && filter.TestString(code) {
						hits++
					}
				}
				if hits >= need {
					candidates[code] |= fileBit
				}
			})
			if err != nil {
				return errors.Wrapf(err, "file %s", path)
			}
			f.lg.Debug("File scanned", zap.String("file", path), zap.Int("candidates", len(candidates)))
			results[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// stream calls fn with every normalized code of acceptable length in the
// gzip file at path and returns how many it passed.
func (f *Finder) stream(ctx context.Context, idx int, path, pass string, fn func(code string)) (uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open")
	}
	defer func() { _ = file.Close() }()

	gz, err := pgzip.NewReader(file)
	if err != nil {
		return 0, errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	var count uint64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		code := coupon.NormalizeCode(scanner.Text())
		if len(code) < f.cfg.MinLen || len(code) > f.cfg.MaxLen {
			continue
		}
		fn(code)
		count++
		if f.cfg.ProgressEvery > 0 && count%f.cfg.ProgressEvery == 0 {
			f.lg.Info("Progress",
				zap.String("pass", pass),
				zap.Int("file", idx+1),
				zap.Uint64("codes", count),
			)
		}
	}
	if err := scanner.Err(); err != nil {
		return count, errors.Wrap(err, "scan")
	}
	return count, nil
}

// Result counts the outcome of Import.
type Result struct {
	Created int
	// Skipped counts codes that already existed.
	Skipped int
}

// Import creates a coupon per code from template, whose Code is ignored.
// Existing codes are skipped. Any other failure stops the import; coupons
// created before it are kept.
func Import(ctx context.Context, lg *zap.Logger, engine *coupon.Engine, codes []string, template coupon.CreateRequest) (Result, error) {
	var res Result
	for i, code := range codes {
		req := template
		req.Code = code
		_, err := engine.Create(ctx, req)
		switch {
		case errors.Is(err, coupon.ErrCodeTaken):
			res.Skipped++
		case err != nil:
			return res, errors.Wrapf(err, "create coupon %s", code)
		default:
			res.Created++
		}
		if (i+1)%1000 == 0 || i+1 == len(codes) {
			lg.Info("Import progress", zap.Int("done", i+1), zap.Int("total", len(codes)))
		}
	}
	return res, nil
}
