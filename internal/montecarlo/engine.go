package montecarlo

import (
	"context"
	"math/rand/v2"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/rnpv-cli/internal/model"
	"github.com/sells-group/rnpv-cli/internal/valuation"
)

// Run modes reported to the Recorder.
const (
	ModeSingle    = "single"
	ModePortfolio = "portfolio"
)

// Recorder receives run telemetry. Implementations must be safe for
// concurrent use.
type Recorder interface {
	IterationCompleted(mode string)
	RunCompleted(mode string, completed int, elapsed time.Duration, partial bool)
}

// Config controls one simulation run.
type Config struct {
	Iterations       int
	Seed             uint64
	Workers          int     // 0 means GOMAXPROCS
	Correlation      float64 // pairwise, portfolio runs only
	Options          valuation.Options
	ProgressInterval time.Duration // 0 disables progress logs
	Recorder         Recorder
}

func (c Config) validate() error {
	if c.Iterations <= 0 {
		return &model.ValidationError{Entity: "simulation", Field: "iterations", Value: c.Iterations, Reason: "iteration count must be positive"}
	}
	if c.Workers < 0 {
		return &model.ValidationError{Entity: "simulation", Field: "workers", Value: c.Workers, Reason: "worker count must not be negative"}
	}
	return nil
}

// streamFor returns the random stream of one iteration. Streams depend only
// on the seed and iteration index, so results do not depend on how
// iterations are spread over workers.
func streamFor(seed uint64, iteration int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(iteration)))
}

// Simulate runs the single-asset Monte Carlo. If ctx is cancelled the
// summary covers the iterations completed so far, is marked Partial, and
// is returned together with the context error.
func Simulate(ctx context.Context, snap *model.Snapshot, shocks *Shocks, cfg Config) (*DistributionSummary, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := valuation.Validate(snap, cfg.Options); err != nil {
		return nil, err
	}

	draws := make([]float64, cfg.Iterations)
	completed, err := runIterations(ctx, cfg, ModeSingle, func(i int) error {
		rng := streamFor(cfg.Seed, i)
		perturbed := shocks.Apply(snap, rng, uniform(rng))
		_, res, err := valuation.Run(perturbed, cfg.Options)
		if err != nil {
			return eris.Wrapf(err, "montecarlo: iteration %d", i)
		}
		draws[i] = res.NPVTotal
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return nil, err
	}

	sum := finish(Summarize(draws[:completed]), cfg, completed)
	return &sum, ctx.Err()
}

// runIterations executes iterate for every index in [0, cfg.Iterations)
// across workers. Indices are claimed in order and a claimed index always
// runs to completion, so the completed set is always a prefix. It returns
// the number of completed iterations.
func runIterations(ctx context.Context, cfg Config, mode string, iterate func(i int) error) (int, error) {
	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, cfg.Iterations)

	log := zap.L().With(zap.String("mode", mode))
	log.Info("montecarlo: starting",
		zap.Int("iterations", cfg.Iterations),
		zap.Int("workers", workers),
		zap.Uint64("seed", cfg.Seed),
	)

	var progress *rate.Sometimes
	if cfg.ProgressInterval > 0 {
		progress = &rate.Sometimes{Interval: cfg.ProgressInterval}
	}

	start := time.Now()
	var next, done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			for gctx.Err() == nil {
				i := int(next.Add(1) - 1)
				if i >= cfg.Iterations {
					return nil
				}
				if err := iterate(i); err != nil {
					return err
				}
				n := done.Add(1)
				if cfg.Recorder != nil {
					cfg.Recorder.IterationCompleted(mode)
				}
				if progress != nil {
					progress.Do(func() {
						log.Info("montecarlo: progress",
							zap.Int64("completed", n),
							zap.Int("iterations", cfg.Iterations),
						)
					})
				}
			}
			return nil
		})
	}
	err := g.Wait()

	completed := int(done.Load())
	partial := completed < cfg.Iterations
	elapsed := time.Since(start)
	if cfg.Recorder != nil {
		cfg.Recorder.RunCompleted(mode, completed, elapsed, partial)
	}

	switch {
	case err != nil:
		log.Error("montecarlo: iteration failed", zap.Error(err))
		return completed, err
	case ctx.Err() != nil:
		log.Warn("montecarlo: cancelled",
			zap.Int("completed", completed),
			zap.Int("iterations", cfg.Iterations),
			zap.Error(ctx.Err()),
		)
		return completed, ctx.Err()
	}
	log.Info("montecarlo: complete",
		zap.Int("completed", completed),
		zap.Duration("elapsed", elapsed),
	)
	return completed, nil
}
