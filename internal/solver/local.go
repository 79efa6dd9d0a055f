package solver

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/partdiff/internal/cluster"
	"github.com/dreamware/partdiff/internal/config"
	"github.com/dreamware/partdiff/internal/grid"
)

// Report is the outcome of a whole solve as seen by the reporting rank.
type Report struct {
	Ranks      int
	Iterations int
	Residual   float64
	Elapsed    time.Duration
	Matrix     *grid.Matrix // full grid gathered on rank 0
}

// SolveLocal runs a solve with ranks in-process ranks, each in its own
// goroutine with its own buffers, connected by a cluster.LocalWorld.
// The configuration is validated for the rank count before any rank starts.
func SolveLocal(ctx context.Context, cfg config.Config, ranks int) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	if err := cfg.ValidateRanks(ranks); err != nil {
		return Report{}, err
	}

	world := cluster.NewLocalWorld(ranks)
	started := time.Now()

	var report Report
	g, gctx := errgroup.WithContext(ctx)
	// A rank that fails or is canceled cancels gctx; release the ranks
	// waiting for it in a collective.
	stop := context.AfterFunc(gctx, func() { world.Abort(context.Cause(gctx)) })
	defer stop()
	for r := range ranks {
		g.Go(func() error {
			res, full, err := Solve(gctx, cfg, world.Comm(r))
			if err != nil {
				return err
			}
			if r == 0 {
				report = Report{
					Ranks:      ranks,
					Iterations: res.Iterations,
					Residual:   res.Residual,
					Matrix:     full,
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	report.Elapsed = time.Since(started)
	return report, nil
}
