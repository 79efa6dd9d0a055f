// Package solver drives the relaxation loop of one rank until the configured
// termination predicate is met.
//
// Each iteration:
//
//  1. the parallel driver sweeps the read buffer into the write buffer
//  2. with more than one rank, the synchronizer exchanges halo rows, reduces
//     the residual to its global maximum and waits on a barrier
//  3. read and write buffers swap (a no-op for Gauss-Seidel)
//  4. the iteration counter advances and the predicate is checked
//
// Precision mode stops once the global residual drops below the threshold;
// iteration mode stops after exactly the configured number of sweeps. The
// residual is computed on every sweep in both modes.
package solver

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dreamware/partdiff/internal/cluster"
	"github.com/dreamware/partdiff/internal/config"
	"github.com/dreamware/partdiff/internal/grid"
	"github.com/dreamware/partdiff/internal/halo"
	"github.com/dreamware/partdiff/internal/parallel"
	"github.com/dreamware/partdiff/internal/partition"
	"github.com/dreamware/partdiff/internal/stencil"
)

// Result is the outcome of a solve on one rank.
type Result struct {
	Iterations int
	Residual   float64 // global residual of the last sweep
	Buffer     int     // index of the buffer holding the final values
	Store      *grid.Store
	Partition  partition.Partition
	Elapsed    time.Duration
}

// Final returns the rank's matrix holding the last sweep's values.
func (r Result) Final() *grid.Matrix { return r.Store.Buffer(r.Buffer) }

// Solver owns the buffers and the iteration state of one rank.
type Solver struct {
	cfg    config.Config
	part   partition.Partition
	store  *grid.Store
	driver *parallel.Driver
	sync   *halo.Synchronizer // nil for single-rank runs
}

// New validates cfg for comm's group, partitions the grid and allocates the
// rank's buffers. No sweep runs before Run.
func New(cfg config.Config, comm cluster.Communicator) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateRanks(comm.Size()); err != nil {
		return nil, err
	}

	part, err := partition.Compute(cfg.N(), comm.Rank(), comm.Size())
	if err != nil {
		return nil, err
	}
	store, err := grid.NewStore(cfg, part)
	if err != nil {
		return nil, fmt.Errorf("allocate rank %d: %w", part.Rank, err)
	}

	lo, hi := part.Interior()
	s := &Solver{
		cfg:    cfg,
		part:   part,
		store:  store,
		driver: parallel.NewDriver(stencil.New(cfg, part.Offset()), lo, hi, cfg.Workers),
	}
	if comm.Size() > 1 {
		s.sync = halo.New(comm, part)
	}
	return s, nil
}

// Partition returns the rows this solver relaxes.
func (s *Solver) Partition() partition.Partition { return s.part }

// Run iterates until the termination predicate holds. Any communication
// failure aborts the solve.
func (s *Solver) Run(ctx context.Context) (Result, error) {
	m1, m2 := 0, 0 // write, read
	if s.cfg.Method == config.Jacobi {
		m2 = 1
	}

	log.Printf("rank[%d] solving rows [%d,%d) of N=%d with %s, %d workers, %d buffer bytes",
		s.part.Rank, s.part.Start, s.part.End, s.part.N, s.cfg.Method, len(s.driver.Chunks()), s.store.Bytes())

	started := time.Now()
	var iterations int
	var residual float64
	for {
		read, write := s.store.Buffer(m2), s.store.Buffer(m1)

		local, err := s.driver.Sweep(ctx, read, write, true)
		if err != nil {
			return Result{}, fmt.Errorf("sweep %d: %w", iterations+1, err)
		}
		residual = local
		if s.sync != nil {
			if residual, err = s.sync.Step(ctx, write, local); err != nil {
				return Result{}, fmt.Errorf("sweep %d: %w", iterations+1, err)
			}
		}

		iterations++
		m1, m2 = m2, m1

		if s.done(iterations, residual) {
			break
		}
	}

	res := Result{
		Iterations: iterations,
		Residual:   residual,
		Buffer:     m2,
		Store:      s.store,
		Partition:  s.part,
		Elapsed:    time.Since(started),
	}
	log.Printf("rank[%d] finished after %d iterations, residual %e", s.part.Rank, iterations, residual)
	return res, nil
}

func (s *Solver) done(iterations int, residual float64) bool {
	switch s.cfg.Termination {
	case config.TermPrecision:
		return residual < s.cfg.Precision
	default:
		return iterations >= s.cfg.Iterations
	}
}

// Gather collects the final grid of every rank on rank 0. Rank 0 receives the
// full matrix; other ranks receive nil. A single-rank run returns a copy of
// its own buffer.
func (s *Solver) Gather(ctx context.Context, res Result) (*grid.Matrix, error) {
	if s.sync == nil {
		return res.Final().Clone(), nil
	}
	return s.sync.Gather(ctx, res.Final())
}

// Solve runs one rank of a solve and gathers the grid on rank 0.
func Solve(ctx context.Context, cfg config.Config, comm cluster.Communicator) (Result, *grid.Matrix, error) {
	s, err := New(cfg, comm)
	if err != nil {
		return Result{}, nil, err
	}
	res, err := s.Run(ctx)
	if err != nil {
		return Result{}, nil, err
	}
	full, err := s.Gather(ctx, res)
	if err != nil {
		return Result{}, nil, err
	}
	return res, full, nil
}
