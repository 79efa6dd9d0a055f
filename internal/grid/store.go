package grid

import (
	"fmt"

	"github.com/dreamware/partdiff/internal/config"
	"github.com/dreamware/partdiff/internal/partition"
)

// Store holds the buffer set of one rank: one matrix for Gauss-Seidel, two
// ping-pong matrices for Jacobi. Each matrix covers the rank's local rows
// (interior plus the row above and below) and all N+1 columns.
//
// A Store is owned by a single solve. The matrices are not protected by any
// lock; the parallel driver guarantees workers write disjoint rows.
type Store struct {
	part    partition.Partition
	n       int
	h       float64
	buffers []*Matrix
}

// NewStore allocates and initializes the buffers described by cfg for the
// rows owned by part.
//
// Initialization:
//   - every cell starts at 0.0
//   - with the zero forcing function the fixed borders follow the linear
//     profile: column 0 = 1 - h*g, column N = h*g for global row g, global
//     row 0 = 1 - h*j and global row N = h*j for column j, and the corners
//     (N,0) and (0,N) are 0.0
//   - with the sinusoidal forcing function the borders stay 0.0
//
// Only the first rank writes global row 0 and only the last rank writes
// global row N; every rank writes columns 0 and N of each row it stores.
func NewStore(cfg config.Config, part partition.Partition) (*Store, error) {
	n := cfg.N()
	if part.N != n {
		return nil, fmt.Errorf("grid: partition is for N=%d, config has N=%d", part.N, n)
	}

	s := &Store{part: part, n: n, h: cfg.H()}
	for range cfg.Matrices() {
		m, err := NewMatrix(part.LocalRows(), n+1)
		if err != nil {
			return nil, err
		}
		s.buffers = append(s.buffers, m)
	}

	if cfg.Forcing == config.ForcingZero {
		for _, m := range s.buffers {
			s.applyLinearBorders(m)
		}
	}
	return s, nil
}

func (s *Store) applyLinearBorders(m *Matrix) {
	n, h := s.n, s.h
	last := m.Rows() - 1

	for l := 0; l <= last; l++ {
		g := float64(s.part.Global(l))
		m.Set(l, 0, 1.0-h*g)
		m.Set(l, n, h*g)
	}
	if !s.part.HasUpper() {
		for j := 0; j <= n; j++ {
			m.Set(0, j, 1.0-h*float64(j))
		}
		m.Set(0, n, 0.0)
	}
	if !s.part.HasLower() {
		for j := 0; j <= n; j++ {
			m.Set(last, j, h*float64(j))
		}
		m.Set(last, 0, 0.0)
	}
}

// Buffer returns matrix idx (0 or 1).
func (s *Store) Buffer(idx int) *Matrix { return s.buffers[idx] }

// Count is the number of matrices in the set.
func (s *Store) Count() int { return len(s.buffers) }

// Partition returns the rows this store covers.
func (s *Store) Partition() partition.Partition { return s.part }

// N returns the grid dimension.
func (s *Store) N() int { return s.n }

// Bytes is the memory held by the buffer set.
func (s *Store) Bytes() int { return BufferBytes(len(s.buffers), s.part) }

// BufferBytes is the memory of count matrices covering part, without
// allocating them.
func BufferBytes(count int, part partition.Partition) int {
	return count * part.LocalRows() * (part.N + 1) * 8
}
