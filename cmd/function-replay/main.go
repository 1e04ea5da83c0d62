// Command function-replay re-evaluates captured discount function runs and
// reports runs whose recorded output differs from the current engine.
//
//	function-replay [flags] runs-1.jsonl.gz runs-2.jsonl ...
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/mapguard/map-guard/internal/replay"
)

const exitDrift = 2

func main() {
	var (
		cfg    replay.Config
		strict bool
		debug  bool
	)
	flag.UintVar(&cfg.ExpectedRuns, "expected-runs", replay.DefaultExpectedRuns, "expected number of distinct runs, sizes the duplicate filter")
	flag.Float64Var(&cfg.FalsePositiveRate, "fp-rate", replay.DefaultFalsePositiveRate, "duplicate filter false positive rate")
	flag.IntVar(&cfg.MaxMismatches, "max-mismatches", replay.DefaultMaxMismatches, "number of mismatches to list")
	flag.BoolVar(&strict, "strict", false, fmt.Sprintf("exit with status %d when any run mismatched or failed", exitDrift))
	flag.BoolVar(&debug, "debug", false, "log every failed run")
	flag.Parse()

	lgCfg := zap.NewProductionConfig()
	if debug {
		lgCfg.Level.SetLevel(zap.DebugLevel)
	}
	lg, err := lgCfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	if flag.NArg() == 0 {
		lg.Error("No capture files given")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	report, err := run(ctx, cfg, flag.Args())
	if err != nil {
		lg.Error("Replay failed", zap.Error(err))
		os.Exit(1)
	}

	totals := report.Totals()
	lg.Info("Replay finished",
		zap.Int("runs", totals.Total),
		zap.Int("duplicates", totals.Duplicates),
		zap.Int("matched", totals.Matched),
		zap.Int("mismatched", totals.Mismatched),
		zap.Int("failed", totals.Failed),
	)
	if strict && totals.Mismatched+totals.Failed > 0 {
		os.Exit(exitDrift)
	}
}

func run(ctx context.Context, cfg replay.Config, files []string) (replay.Report, error) {
	report, err := replay.New(cfg).Replay(ctx, files)
	if err != nil {
		return replay.Report{}, err
	}

	var e jx.Encoder
	report.Encode(&e)
	if _, err := os.Stdout.Write(append(e.Bytes(), '\n')); err != nil {
		return replay.Report{}, errors.Wrap(err, "write report")
	}
	return report, nil
}
