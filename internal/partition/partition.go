// Package partition splits the relaxable rows 1..N-1 of the grid into
// contiguous bands, one per rank.
//
// Every rank stores its band plus one extra row on each side. For an interior
// rank both extra rows are halo rows copied from the neighbors; the first rank
// stores the fixed global row 0 instead of an upper halo and the last rank the
// fixed global row N instead of a lower halo.
//
// Example with N = 8 (rows 1..7) and 3 ranks:
//
//	rank 0: interior [1,4)  local rows = global 0..4
//	rank 1: interior [4,6)  local rows = global 3..6
//	rank 2: interior [6,8)  local rows = global 5..8
package partition

import (
	"github.com/dreamware/partdiff/internal/config"
)

// Partition describes the rows owned by one rank.
type Partition struct {
	Rank int // index of the owning rank
	Size int // number of ranks
	N    int // grid dimension; the global grid has N+1 rows

	// Start and End bound the half-open global interior range [Start, End).
	Start int
	End   int
}

// Compute returns the partition of rank out of size for a grid of dimension n.
// The (n-1) % size leftover rows go one each to the lowest ranks.
func Compute(n, rank, size int) (Partition, error) {
	rows := n - 1
	if size < 1 || size > rows {
		return Partition{}, &config.ConfigurationError{Field: "ranks", Value: size, Reason: "must be in 1..N-1"}
	}
	if rank < 0 || rank >= size {
		return Partition{}, &config.ConfigurationError{Field: "rank", Value: rank, Reason: "must be in 0..size-1"}
	}

	base, rest := rows/size, rows%size
	start := 1 + rank*base + min(rank, rest)
	count := base
	if rank < rest {
		count++
	}

	return Partition{Rank: rank, Size: size, N: n, Start: start, End: start + count}, nil
}

// All returns the partitions of every rank in rank order.
func All(n, size int) ([]Partition, error) {
	if size < 1 {
		return nil, &config.ConfigurationError{Field: "ranks", Value: size, Reason: "must be in 1..N-1"}
	}
	parts := make([]Partition, size)
	for r := range parts {
		p, err := Compute(n, r, size)
		if err != nil {
			return nil, err
		}
		parts[r] = p
	}
	return parts, nil
}

// Single is the partition of a one-rank run.
func Single(n int) Partition {
	return Partition{Rank: 0, Size: 1, N: n, Start: 1, End: n}
}

// OwnedRows is the number of interior rows the rank relaxes.
func (p Partition) OwnedRows() int { return p.End - p.Start }

// LocalRows is the number of rows the rank stores: its interior plus one row
// above and one below.
func (p Partition) LocalRows() int { return p.OwnedRows() + 2 }

// HasUpper reports whether the rank exchanges its first interior row with rank-1.
func (p Partition) HasUpper() bool { return p.Rank > 0 }

// HasLower reports whether the rank exchanges its last interior row with rank+1.
func (p Partition) HasLower() bool { return p.Rank < p.Size-1 }

// Offset is the global index of local row 0.
func (p Partition) Offset() int { return p.Start - 1 }

// Global converts a local row index to a global one.
func (p Partition) Global(local int) int { return local + p.Offset() }

// Local converts a global row index to a local one.
func (p Partition) Local(global int) int { return global - p.Offset() }

// Interior returns the local half-open range of rows the rank relaxes.
func (p Partition) Interior() (lo, hi int) { return 1, p.OwnedRows() + 1 }

// Halos returns the global indices of the halo rows the rank stores.
func (p Partition) Halos() []int {
	var h []int
	if p.HasUpper() {
		h = append(h, p.Start-1)
	}
	if p.HasLower() {
		h = append(h, p.End)
	}
	return h
}

// Reported returns the local range of rows the rank contributes when the
// grid is gathered: its interior, plus global row 0 on the first rank and
// global row N on the last.
func (p Partition) Reported() (lo, hi int) {
	lo, hi = p.Interior()
	if !p.HasUpper() {
		lo = 0
	}
	if !p.HasLower() {
		hi++
	}
	return lo, hi
}
