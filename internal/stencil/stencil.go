// Package stencil implements one five-point relaxation sweep over a band of
// grid rows.
//
// For every interior cell (i, j), 1 <= j <= N-1:
//
//	star = 0.25 * (up[j] + row[j-1] + row[j+1] + down[j])
//	star += 0.25 * 2*pi^2*h^2 * sin(pi*h*i_global) * sin(pi*h*j)   (sinusoidal forcing)
//	residual = max(residual, |old - star|)
//	write[i][j] = star
//
// When read and write are the same matrix the sweep is Gauss-Seidel: rows and
// columns are visited in increasing order, so up[j] and row[j-1] are values
// already updated in this sweep. With distinct matrices it is Jacobi.
package stencil

import (
	"math"

	"github.com/dreamware/partdiff/internal/config"
	"github.com/dreamware/partdiff/internal/grid"
)

// Kernel carries the per-solve constants of the sweep. It is immutable and
// shared by all workers.
type Kernel struct {
	n      int
	offset int // global index of local row 0
	forced bool
	pih    float64
	fpisin float64
}

// New builds the kernel for a grid of dimension cfg.N() whose local row 0 is
// global row offset.
func New(cfg config.Config, offset int) *Kernel {
	k := &Kernel{n: cfg.N(), offset: offset}
	if cfg.Forcing == config.ForcingSinusoidal {
		h := cfg.H()
		k.forced = true
		k.pih = math.Pi * h
		k.fpisin = 0.25 * (2 * math.Pi * math.Pi) * h * h
	}
	return k
}

// Task is the band of local rows [Lo, Hi) a single sweep call relaxes.
//
// Above and Below, when set, replace the rows Lo-1 and Hi as read sources.
// The parallel driver uses them to hand a worker snapshots of rows that a
// neighboring worker is rewriting in place.
type Task struct {
	Lo, Hi int
	Above  []float64
	Below  []float64
}

// Sweep relaxes t's rows, reading from read and writing to write, and returns
// the largest change at any cell. With track false the residual is not
// computed and 0 is returned.
func (k *Kernel) Sweep(read, write *grid.Matrix, t Task, track bool) float64 {
	n := k.n
	var maxres float64

	for i := t.Lo; i < t.Hi; i++ {
		up := t.Above
		if i > t.Lo || up == nil {
			up = read.Row(i - 1)
		}
		down := t.Below
		if i < t.Hi-1 || down == nil {
			down = read.Row(i + 1)
		}
		row := read.Row(i)
		out := write.Row(i)

		var fpisinI float64
		if k.forced {
			fpisinI = k.fpisin * math.Sin(k.pih*float64(i+k.offset))
		}

		for j := 1; j < n; j++ {
			star := 0.25 * (up[j] + row[j-1] + row[j+1] + down[j])
			if k.forced {
				star += fpisinI * math.Sin(k.pih*float64(j))
			}
			if track {
				if r := math.Abs(row[j] - star); r > maxres {
					maxres = r
				}
			}
			out[j] = star
		}
	}
	return maxres
}
