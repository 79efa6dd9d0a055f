// Package halo keeps the row bands of neighboring ranks consistent between
// sweeps and reduces the residual across ranks.
package halo

import (
	"context"
	"fmt"

	"github.com/dreamware/partdiff/internal/cluster"
	"github.com/dreamware/partdiff/internal/grid"
	"github.com/dreamware/partdiff/internal/partition"
)

// Message tags. A row travelling towards rank-1 is tagged TagUp, one
// travelling towards rank+1 TagDown.
const (
	TagUp     = 1
	TagDown   = 2
	TagGather = 3
)

// Synchronizer runs the per-sweep communication of one rank.
type Synchronizer struct {
	comm cluster.Communicator
	part partition.Partition
}

// New returns the synchronizer for the rank owning part.
func New(comm cluster.Communicator, part partition.Partition) *Synchronizer {
	return &Synchronizer{comm: comm, part: part}
}

// Exchange sends the first interior row of m to the upper neighbor and the
// last interior row to the lower neighbor, and receives the neighbors' rows
// into the halo rows of m. All transfers are issued before any is waited on.
// Directions without a neighbor are skipped.
func (s *Synchronizer) Exchange(ctx context.Context, m *grid.Matrix) error {
	p := s.part
	rank := p.Rank
	lo, hi := p.Interior()

	reqs := make([]cluster.Request, 0, 4)
	if p.HasUpper() {
		reqs = append(reqs,
			s.comm.Isend(ctx, rank-1, TagUp, m.Row(lo)),
			s.comm.Irecv(ctx, rank-1, TagDown, m.Row(lo-1)),
		)
	}
	if p.HasLower() {
		reqs = append(reqs,
			s.comm.Isend(ctx, rank+1, TagDown, m.Row(hi-1)),
			s.comm.Irecv(ctx, rank+1, TagUp, m.Row(hi)),
		)
	}
	if err := cluster.WaitAll(reqs...); err != nil {
		return fmt.Errorf("halo exchange rank %d: %w", rank, err)
	}
	return nil
}

// Reduce returns the maximum residual over all ranks.
func (s *Synchronizer) Reduce(ctx context.Context, residual float64) (float64, error) {
	v, err := s.comm.AllreduceMax(ctx, residual)
	if err != nil {
		return 0, fmt.Errorf("residual reduction rank %d: %w", s.part.Rank, err)
	}
	return v, nil
}

// Barrier blocks until every rank has reached it.
func (s *Synchronizer) Barrier(ctx context.Context) error {
	if err := s.comm.Barrier(ctx); err != nil {
		return fmt.Errorf("barrier rank %d: %w", s.part.Rank, err)
	}
	return nil
}

// Step runs the full per-sweep synchronization: halo exchange on the
// freshly written matrix, global residual reduction, then a barrier.
func (s *Synchronizer) Step(ctx context.Context, written *grid.Matrix, residual float64) (float64, error) {
	if err := s.Exchange(ctx, written); err != nil {
		return 0, err
	}
	global, err := s.Reduce(ctx, residual)
	if err != nil {
		return 0, err
	}
	if err := s.Barrier(ctx); err != nil {
		return 0, err
	}
	return global, nil
}

// Gather assembles the full (N+1)x(N+1) grid on rank 0 from the reported rows
// of every rank. Rank 0 returns the grid, every other rank returns nil after
// its rows have been delivered.
func (s *Synchronizer) Gather(ctx context.Context, m *grid.Matrix) (*grid.Matrix, error) {
	p := s.part
	if p.Rank != 0 {
		lo, hi := p.Reported()
		if err := cluster.Send(ctx, s.comm, 0, TagGather, m.RowsRange(lo, hi)); err != nil {
			return nil, fmt.Errorf("gather send rank %d: %w", p.Rank, err)
		}
		return nil, nil
	}

	full, err := grid.NewMatrix(p.N+1, p.N+1)
	if err != nil {
		return nil, err
	}
	lo, hi := p.Reported()
	copy(full.RowsRange(p.Global(lo), p.Global(hi)), m.RowsRange(lo, hi))

	parts, err := partition.All(p.N, p.Size)
	if err != nil {
		return nil, err
	}
	reqs := make([]cluster.Request, 0, len(parts)-1)
	for _, q := range parts[1:] {
		qlo, qhi := q.Reported()
		dst := full.RowsRange(q.Global(qlo), q.Global(qhi))
		reqs = append(reqs, s.comm.Irecv(ctx, q.Rank, TagGather, dst))
	}
	if err := cluster.WaitAll(reqs...); err != nil {
		return nil, fmt.Errorf("gather on rank 0: %w", err)
	}
	return full, nil
}
