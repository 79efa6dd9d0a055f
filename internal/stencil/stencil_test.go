package stencil

import (
	"math"
	"testing"

	"github.com/dreamware/partdiff/internal/config"
	"github.com/dreamware/partdiff/internal/grid"
	"github.com/dreamware/partdiff/internal/partition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, cfg config.Config) *grid.Store {
	t.Helper()
	s, err := grid.NewStore(cfg, partition.Single(cfg.N()))
	require.NoError(t, err)
	return s
}

// TestSingleJacobiSweep checks cells after one sweep on the N = 8 grid
// against values computed by hand from the linear border profile (h = 1/8).
func TestSingleJacobiSweep(t *testing.T) {
	cfg := config.Default()
	s := newStore(t, cfg)
	k := New(cfg, 0)

	read, write := s.Buffer(1), s.Buffer(0)
	res := k.Sweep(read, write, Task{Lo: 1, Hi: 8}, true)

	// (4,4): all four neighbors are interior zeros.
	assert.Equal(t, 0.0, write.At(4, 4))
	// (1,1): up = 1-h, left = 1-h, right = down = 0.
	assert.InDelta(t, 0.25*(0.875+0.875), write.At(1, 1), 1e-15)
	// (1,7): up = 1-7h, right = h, others 0.
	assert.InDelta(t, 0.25*(0.125+0.125), write.At(1, 7), 1e-15)
	// (7,7): down = 7h, right = 7h.
	assert.InDelta(t, 0.25*(0.875+0.875), write.At(7, 7), 1e-15)

	assert.InDelta(t, 0.4375, res, 1e-15)
	// The read buffer is untouched by a Jacobi sweep.
	assert.Equal(t, 0.0, read.At(1, 1))
}

// TestGaussSeidelUsesUpdatedNeighbors checks in-place ordering: the second
// cell of the first row sees the already relaxed first cell.
func TestGaussSeidelUsesUpdatedNeighbors(t *testing.T) {
	cfg := config.Default()
	cfg.Method = config.GaussSeidel
	s := newStore(t, cfg)
	k := New(cfg, 0)

	m := s.Buffer(0)
	k.Sweep(m, m, Task{Lo: 1, Hi: 8}, false)

	first := 0.25 * (0.875 + 0.875)
	assert.InDelta(t, first, m.At(1, 1), 1e-15)
	assert.InDelta(t, 0.25*(0.75+first), m.At(1, 2), 1e-15)
	assert.InDelta(t, 0.25*(first+0.75), m.At(2, 1), 1e-15)
}

func TestTrackingDisabledReturnsZero(t *testing.T) {
	cfg := config.Default()
	s := newStore(t, cfg)
	res := New(cfg, 0).Sweep(s.Buffer(1), s.Buffer(0), Task{Lo: 1, Hi: 8}, false)
	assert.Zero(t, res)
}

// TestSweepIsIdempotentWhenConverged relaxes to a tight residual, then checks
// one more sweep leaves the grid unchanged up to rounding.
func TestSweepIsIdempotentWhenConverged(t *testing.T) {
	for _, forcing := range []config.Forcing{config.ForcingZero, config.ForcingSinusoidal} {
		cfg := config.Default()
		cfg.Method = config.GaussSeidel
		cfg.Forcing = forcing
		s := newStore(t, cfg)
		k := New(cfg, 0)
		m := s.Buffer(0)

		res := math.Inf(1)
		for it := 0; it < 10000 && res > 1e-13; it++ {
			res = k.Sweep(m, m, Task{Lo: 1, Hi: 8}, true)
		}
		require.LessOrEqual(t, res, 1e-13)

		before := m.Clone()
		res = k.Sweep(m, m, Task{Lo: 1, Hi: 8}, true)
		assert.LessOrEqual(t, res, 1e-13)
		d, err := before.MaxAbsDiff(m)
		require.NoError(t, err)
		assert.LessOrEqual(t, d, 1e-13, "forcing %v", forcing)
	}
}

// TestAboveBelowOverride checks that snapshot rows replace the rows just
// outside the task.
func TestAboveBelowOverride(t *testing.T) {
	cfg := config.Default()
	cfg.Method = config.GaussSeidel
	s := newStore(t, cfg)
	k := New(cfg, 0)
	m := s.Buffer(0)

	above := make([]float64, 9)
	below := make([]float64, 9)
	for j := range above {
		above[j] = 4
		below[j] = 8
	}
	k.Sweep(m, m, Task{Lo: 3, Hi: 5, Above: above, Below: below}, false)

	// Row 3 reads 4 from above, row 4 reads 8 from below.
	// (3,4): 0.25*(4 + 0 + 0 + row4[4]=0) = 1
	assert.InDelta(t, 1.0, m.At(3, 4), 1e-15)
	// (4,4): 0.25*(updated (3,4)=1 + updated (4,3) + 0 + 8)
	assert.InDelta(t, 0.25*(1+m.At(4, 3)+8), m.At(4, 4), 1e-15)
	// Rows outside the task are untouched.
	assert.Zero(t, m.At(2, 4))
	assert.Zero(t, m.At(5, 4))
}

// TestSinusoidalUsesGlobalRow checks that a kernel with an offset produces
// the same forcing term as the whole-grid kernel at the same global row.
func TestSinusoidalUsesGlobalRow(t *testing.T) {
	cfg := config.Default()
	cfg.Forcing = config.ForcingSinusoidal
	whole := newStore(t, cfg)
	New(cfg, 0).Sweep(whole.Buffer(1), whole.Buffer(0), Task{Lo: 1, Hi: 8}, false)

	p, err := partition.Compute(cfg.N(), 1, 2) // [5,8)
	require.NoError(t, err)
	part, err := grid.NewStore(cfg, p)
	require.NoError(t, err)
	lo, hi := p.Interior()
	New(cfg, p.Offset()).Sweep(part.Buffer(1), part.Buffer(0), Task{Lo: lo, Hi: hi}, false)

	for l := lo; l < hi; l++ {
		assert.Equal(t, whole.Buffer(0).Row(p.Global(l)), part.Buffer(0).Row(l))
	}
}
