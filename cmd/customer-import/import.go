package main

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/tier"
	"github.com/xenking/loyalty-orders/internal/domain/validation"
)

const (
	bloomFPR      = 0.001
	maxLineSize   = 1 << 20
	progressEvery = 100_000
)

type creator interface {
	Create(ctx context.Context, req customer.CreateRequest) (*customer.Customer, error)
}

type record struct {
	Name  string
	Email string
	Tier  string
}

// key normalizes an email for duplicate detection.
func key(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func parseRecord(line []byte) (record, error) {
	var r record
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, k []byte) error {
		var err error
		switch string(k) {
		case "name":
			r.Name, err = d.Str()
		case "email":
			r.Email, err = d.Str()
		case "tier":
			r.Tier, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return r, err
}

// Report counts what happened to every line.
type Report struct {
	Records    atomic.Int64
	Imported   atomic.Int64
	Duplicates atomic.Int64
	Invalid    atomic.Int64
	// CrossFile is the number of distinct emails present in two or more files.
	CrossFile int
}

type importer struct {
	lg        *zap.Logger
	customers creator
	capacity  uint
}

// Import runs three passes over files. Pass one builds a bloom filter of the
// emails in each file. Pass two tests every email against the filters of the
// other files, and the emails reported by two or more files form the exact
// cross-file set. Pass three creates the customers, skipping cross-file
// emails everywhere except in the first file that has them.
func (imp *importer) Import(ctx context.Context, files []string) (*Report, error) {
	if len(files) > bits.UintSize {
		return nil, errors.Errorf("at most %d files per run", bits.UintSize)
	}

	filters, err := imp.buildFilters(ctx, files)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}
	owners, err := imp.crossFile(ctx, files, filters)
	if err != nil {
		return nil, errors.Wrap(err, "find cross-file emails")
	}
	imp.lg.Info("Cross-file emails found", zap.Int("count", len(owners)))

	report := &Report{CrossFile: len(owners)}
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			return imp.load(gctx, i, path, owners, report)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

func (imp *importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(imp.capacity, bloomFPR)
			if err := streamFile(ctx, path, func(_ int, r record) {
				filter.AddString(key(r.Email))
			}, nil); err != nil {
				return err
			}
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// crossFile returns, for every email confirmed in two or more files, the
// index of the first file containing it.
func (imp *importer) crossFile(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]int, error) {
	found := make([]map[string]struct{}, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			hits := map[string]struct{}{}
			if err := streamFile(ctx, path, func(_ int, r record) {
				k := key(r.Email)
				for j, f := range filters {
					if j != i && f.TestString(k) {
						hits[k] = struct{}{}
						return
					}
				}
			}, nil); err != nil {
				return err
			}
			found[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// A false positive is reported by one file only; a real duplicate by
	// every file that has it.
	masks := map[string]uint{}
	for i, hits := range found {
		for k := range hits {
			masks[k] |= 1 << uint(i)
		}
	}
	owners := make(map[string]int)
	for k, mask := range masks {
		if bits.OnesCount(mask) >= 2 {
			owners[k] = bits.TrailingZeros(mask)
		}
	}
	return owners, nil
}

func (imp *importer) load(ctx context.Context, idx int, path string, owners map[string]int, report *Report) error {
	lg := imp.lg.With(zap.String("file", path))
	seen := map[string]struct{}{}

	var createErr error
	err := streamFile(ctx, path, func(line int, r record) {
		if createErr != nil {
			return
		}
		n := report.Records.Add(1)
		if n%progressEvery == 0 {
			lg.Info("Import progress", zap.Int64("records", n))
		}

		k := key(r.Email)
		if owner, ok := owners[k]; ok {
			if _, dup := seen[k]; dup || owner != idx {
				report.Duplicates.Add(1)
				return
			}
			seen[k] = struct{}{}
		}

		var t tier.Tier
		if r.Tier != "" {
			parsed, err := tier.Parse(r.Tier)
			if err != nil {
				report.Invalid.Add(1)
				lg.Warn("Invalid tier", zap.Int("line", line), zap.String("tier", r.Tier))
				return
			}
			t = parsed
		}

		_, err := imp.customers.Create(ctx, customer.CreateRequest{Name: r.Name, Email: r.Email, Tier: t})
		switch {
		case err == nil:
			report.Imported.Add(1)
		case errors.Is(err, customer.ErrDuplicateEmail):
			report.Duplicates.Add(1)
		default:
			if ve, ok := validation.As(err); ok {
				report.Invalid.Add(1)
				lg.Warn("Invalid record", zap.Int("line", line), zap.String("field", ve.Field), zap.String("reason", ve.Message))
				return
			}
			createErr = errors.Wrapf(err, "%s:%d", path, line)
		}
	}, func(line int, err error) {
		report.Records.Add(1)
		report.Invalid.Add(1)
		lg.Warn("Malformed line", zap.Int("line", line), zap.Error(err))
	})
	if err != nil {
		return err
	}
	return createErr
}

// streamFile decodes every non-empty line of a gzip NDJSON file. Lines that
// fail to decode go to bad, or are skipped when bad is nil.
func streamFile(ctx context.Context, path string, fn func(line int, r record), bad func(line int, err error)) error {
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
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		data := scanner.Bytes()
		if len(strings.TrimSpace(string(data))) == 0 {
			continue
		}
		r, err := parseRecord(data)
		if err != nil {
			if bad != nil {
				bad(line, err)
			}
			continue
		}
		fn(line, r)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
