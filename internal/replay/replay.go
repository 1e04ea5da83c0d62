// Package replay re-evaluates captured function runs with the current
// engine and reports runs whose recorded output differs.
//
// Captures are NDJSON files, one {"input":{...},"output":{...}} object per
// line, optionally gzip-compressed (".gz").
package replay

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mapguard/map-guard/internal/function"
)

const (
	DefaultExpectedRuns      = 1_000_000
	DefaultFalsePositiveRate = 0.001
	DefaultMaxMismatches     = 20

	maxLineBytes  = 16 << 20
	progressEvery = 100_000
)

// Config tunes duplicate detection and mismatch reporting.
type Config struct {
	// ExpectedRuns sizes the duplicate filter.
	ExpectedRuns uint
	// FalsePositiveRate of the duplicate filter. A false positive skips a
	// run that was never seen before.
	FalsePositiveRate float64
	// MaxMismatches caps Report.Mismatches.
	MaxMismatches int
}

func (c *Config) setDefaults() {
	if c.ExpectedRuns == 0 {
		c.ExpectedRuns = DefaultExpectedRuns
	}
	if c.FalsePositiveRate <= 0 || c.FalsePositiveRate >= 1 {
		c.FalsePositiveRate = DefaultFalsePositiveRate
	}
	if c.MaxMismatches <= 0 {
		c.MaxMismatches = DefaultMaxMismatches
	}
}

// Mismatch is a run whose recorded output differs from the current result.
// Expected and Actual are canonical FunctionRunResult documents.
type Mismatch struct {
	File     string
	Line     int
	Expected string
	Actual   string
}

// FileReport counts outcomes for one capture file.
type FileReport struct {
	File       string
	Total      int
	Duplicates int
	Matched    int
	Mismatched int
	Failed     int
}

func (f *FileReport) add(o FileReport) {
	f.Total += o.Total
	f.Duplicates += o.Duplicates
	f.Matched += o.Matched
	f.Mismatched += o.Mismatched
	f.Failed += o.Failed
}

// Report is the outcome of a replay. Files keeps the order of the input
// paths.
type Report struct {
	Files      []FileReport
	Mismatches []Mismatch
}

// Totals sums the per-file counters.
func (r Report) Totals() FileReport {
	var total FileReport
	for _, f := range r.Files {
		total.add(f)
	}
	return total
}

// Replayer replays capture files. Inputs seen in any file of the same
// Replayer are counted as duplicates and not re-evaluated.
type Replayer struct {
	cfg Config

	mu   sync.Mutex
	seen *bloom.BloomFilter
}

// New creates a Replayer.
func New(cfg Config) *Replayer {
	cfg.setDefaults()
	return &Replayer{
		cfg:  cfg,
		seen: bloom.NewWithEstimates(cfg.ExpectedRuns, cfg.FalsePositiveRate),
	}
}

// Replay processes files concurrently. The first file error cancels the
// remaining files and is returned.
func (r *Replayer) Replay(ctx context.Context, files []string) (Report, error) {
	reports := make([]FileReport, len(files))
	mismatches := make([][]Mismatch, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			report, found, err := r.replayFile(ctx, path)
			if err != nil {
				return errors.Wrapf(err, "replay %s", path)
			}
			reports[i] = report
			mismatches[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{Files: reports, Mismatches: make([]Mismatch, 0)}
	for _, found := range mismatches {
		for _, m := range found {
			if len(report.Mismatches) == r.cfg.MaxMismatches {
				return report, nil
			}
			report.Mismatches = append(report.Mismatches, m)
		}
	}
	return report, nil
}

func (r *Replayer) replayFile(ctx context.Context, path string) (FileReport, []Mismatch, error) {
	lg := zctx.From(ctx).With(zap.String("file", path))
	report := FileReport{File: path}
	var mismatches []Mismatch

	err := streamFile(ctx, path, func(lineNo int, line []byte) {
		report.Total++
		if report.Total%progressEvery == 0 {
			lg.Info("Replay progress", zap.Int("runs", report.Total))
		}

		res := r.replayRecord(line)
		switch res.outcome {
		case outcomeDuplicate:
			report.Duplicates++
		case outcomeMatched:
			report.Matched++
		case outcomeMismatched:
			report.Mismatched++
			if len(mismatches) < r.cfg.MaxMismatches {
				mismatches = append(mismatches, Mismatch{
					File:     path,
					Line:     lineNo,
					Expected: res.expected,
					Actual:   res.actual,
				})
			}
		case outcomeFailed:
			report.Failed++
			lg.Debug("Run failed", zap.Int("line", lineNo), zap.Error(res.err))
		}
	})
	if err != nil {
		return FileReport{}, nil, err
	}

	lg.Info("Replay complete",
		zap.Int("runs", report.Total),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("mismatched", report.Mismatched),
		zap.Int("failed", report.Failed),
	)
	return report, mismatches, nil
}

type outcome int

const (
	outcomeMatched outcome = iota
	outcomeMismatched
	outcomeDuplicate
	outcomeFailed
)

type result struct {
	outcome  outcome
	expected string
	actual   string
	err      error
}

func (r *Replayer) replayRecord(line []byte) result {
	input, output, err := splitRecord(line)
	if err != nil {
		return result{outcome: outcomeFailed, err: err}
	}

	r.mu.Lock()
	dup := r.seen.TestOrAdd(input)
	r.mu.Unlock()
	if dup {
		return result{outcome: outcomeDuplicate}
	}

	expected, err := canonical(output)
	if err != nil {
		return result{outcome: outcomeFailed, err: errors.Wrap(err, "recorded output")}
	}
	actual, err := function.Evaluate(input)
	if err != nil {
		return result{outcome: outcomeFailed, err: errors.Wrap(err, "evaluate")}
	}

	if !bytes.Equal(expected, actual) {
		return result{outcome: outcomeMismatched, expected: string(expected), actual: string(actual)}
	}
	return result{outcome: outcomeMatched}
}

// splitRecord returns the raw input and output documents of a capture line.
func splitRecord(line []byte) (input, output []byte, err error) {
	d := jx.DecodeBytes(line)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "input":
			raw, err := d.Raw()
			input = raw
			return err
		case "output":
			raw, err := d.Raw()
			output = raw
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, nil, errors.Wrap(err, "decode record")
	}
	if input == nil || output == nil {
		return nil, nil, errors.New("record needs input and output")
	}
	return input, output, nil
}

// canonical re-encodes a recorded FunctionRunResult the way the current
// encoder writes it, so amounts compare at two decimals.
func canonical(output []byte) ([]byte, error) {
	plan, err := function.DecodeResult(output)
	if err != nil {
		return nil, err
	}
	return function.EncodeResult(plan), nil
}

// streamFile calls fn for each non-blank line of path, decompressing ".gz"
// files. Line numbers start at 1.
func streamFile(ctx context.Context, path string, fn func(lineNo int, line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var src io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		src = gz
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		fn(lineNo, line)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// Encode writes the report as JSON.
func (r Report) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("totals", func(e *jx.Encoder) { writeCounts(e, r.Totals()) })
		e.Field("files", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, f := range r.Files {
					writeCounts(e, f)
				}
			})
		})
		e.Field("mismatches", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, m := range r.Mismatches {
					e.Obj(func(e *jx.Encoder) {
						e.Field("file", func(e *jx.Encoder) { e.Str(m.File) })
						e.Field("line", func(e *jx.Encoder) { e.Int(m.Line) })
						e.Field("expected", func(e *jx.Encoder) { e.Raw([]byte(m.Expected)) })
						e.Field("actual", func(e *jx.Encoder) { e.Raw([]byte(m.Actual)) })
					})
				}
			})
		})
	})
}

func writeCounts(e *jx.Encoder, f FileReport) {
	e.Obj(func(e *jx.Encoder) {
		if f.File != "" {
			e.Field("file", func(e *jx.Encoder) { e.Str(f.File) })
		}
		e.Field("total", func(e *jx.Encoder) { e.Int(f.Total) })
		e.Field("duplicates", func(e *jx.Encoder) { e.Int(f.Duplicates) })
		e.Field("matched", func(e *jx.Encoder) { e.Int(f.Matched) })
		e.Field("mismatched", func(e *jx.Encoder) { e.Int(f.Mismatched) })
		e.Field("failed", func(e *jx.Encoder) { e.Int(f.Failed) })
	})
}
