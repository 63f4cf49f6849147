// Package ingest screens bulk coupon code files for codes that are safe to
// issue. A code is accepted only when it appears in exactly one input file;
// codes shared between files are treated as leaked or duplicated batches and
// rejected.
//
// Files are gzip streams with one code per line. They are read three times:
// pass 1 builds a bloom filter per file, pass 2 collects codes that another
// file's filter may contain and confirms them exactly, pass 3 emits every
// code that was not confirmed as shared.
package ingest

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// MinCodeLen and MaxCodeLen bound accepted code lengths.
	MinCodeLen = 4
	MaxCodeLen = 32

	progressEvery = 10_000_000
)

// Config configures a Screen run.
type Config struct {
	Files []string
	// ExpectedCodes sizes each bloom filter. Defaults to 10M.
	ExpectedCodes uint
	// FalsePositiveRate of each bloom filter. Defaults to 0.001.
	FalsePositiveRate float64
}

// Stats summarizes a Screen run.
type Stats struct {
	Scanned  uint64
	Invalid  uint64
	Shared   int
	Accepted uint64
}

// NormalizeCode upper-cases and trims a raw line. It reports false for codes
// of the wrong length or with characters other than A-Z, 0-9, '-' and '_'.
func NormalizeCode(raw string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) < MinCodeLen || len(code) > MaxCodeLen {
		return "", false
	}
	for i := range len(code) {
		c := code[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return "", false
		}
	}
	return code, true
}

// Screen streams the configured files and calls emit once per accepted
// occurrence of a code, in file order. A code repeated inside one file is
// emitted each time it occurs; the store deduplicates it.
func Screen(ctx context.Context, lg *zap.Logger, cfg Config, emit func(code string) error) (Stats, error) {
	if len(cfg.Files) == 0 {
		return Stats{}, errors.New("no input files")
	}
	if len(cfg.Files) > bits.UintSize {
		return Stats{}, errors.Errorf("at most %d input files are supported", bits.UintSize)
	}
	if cfg.ExpectedCodes == 0 {
		cfg.ExpectedCodes = 10_000_000
	}
	if cfg.FalsePositiveRate == 0 {
		cfg.FalsePositiveRate = 0.001
	}
	for _, f := range cfg.Files {
		if _, err := os.Stat(f); err != nil {
			return Stats{}, errors.Wrapf(err, "check file %s", f)
		}
	}

	lg.Info("Pass 1: building bloom filters", zap.Int("files", len(cfg.Files)))
	filters, err := buildBloomFilters(ctx, lg, cfg)
	if err != nil {
		return Stats{}, errors.Wrap(err, "build bloom filters")
	}

	lg.Info("Pass 2: confirming shared codes")
	shared, err := findSharedCodes(ctx, lg, cfg.Files, filters)
	if err != nil {
		return Stats{}, errors.Wrap(err, "find shared codes")
	}
	lg.Info("Shared codes confirmed", zap.Int("count", len(shared)))

	lg.Info("Pass 3: emitting accepted codes")
	stats := Stats{Shared: len(shared)}
	for i, path := range cfg.Files {
		var emitErr error
		err := streamGzFile(ctx, path, func(raw string) bool {
			stats.Scanned++
			code, ok := NormalizeCode(raw)
			if !ok {
				stats.Invalid++
				return true
			}
			if _, dup := shared[code]; dup {
				return true
			}
			if emitErr = emit(code); emitErr != nil {
				return false
			}
			stats.Accepted++
			return true
		})
		if emitErr != nil {
			return stats, errors.Wrapf(emitErr, "emit from file %d", i+1)
		}
		if err != nil {
			return stats, errors.Wrapf(err, "read file %d", i+1)
		}
	}
	return stats, nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, lg *zap.Logger, cfg Config) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(cfg.Files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range cfg.Files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(cfg.ExpectedCodes, cfg.FalsePositiveRate)
			var count uint64

			if err := streamGzFile(ctx, path, func(raw string) bool {
				code, ok := NormalizeCode(raw)
				if !ok {
					return true
				}
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					lg.Info("Pass 1 progress", zap.Int("file", i+1), zap.Uint64("codes", count))
				}
				return true
			}); err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}

			lg.Info("Pass 1 complete", zap.Int("file", i+1), zap.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findSharedCodes re-streams each file and records, per code, a bitmask of
// the files in which another file's filter tested positive. A code present
// in two files sets both bits; a bloom false positive sets only one, so
// two or more bits confirm the code is shared.
func findSharedCodes(ctx context.Context, lg *zap.Logger, files []string, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	results := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint)
			fileBit := uint(1) << uint(i)
			var count uint64

			if err := streamGzFile(ctx, path, func(raw string) bool {
				code, ok := NormalizeCode(raw)
				if !ok {
					return true
				}
				count++
				if count%progressEvery == 0 {
					lg.Info("Pass 2 progress", zap.Int("file", i+1), zap.Uint64("codes", count))
				}
				for j, f := range filters {
					if j != i && f.TestString(code) {
						candidates[code] |= fileBit
						break
					}
				}
				return true
			}); err != nil {
				return errors.Wrapf(err, "scan file %d for candidates", i+1)
			}

			lg.Info("Pass 2 complete",
				zap.Int("file", i+1),
				zap.Uint64("total_codes", count),
				zap.Int("candidates", len(candidates)),
			)
			results[i] = candidates
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r {
			merged[code] |= mask
		}
	}

	shared := make(map[string]struct{})
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			shared[code] = struct{}{}
		}
	}
	return shared, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line until
// fn returns false.
func streamGzFile(ctx context.Context, path string, fn func(line string) bool) error {
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
		if !fn(scanner.Text()) {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
