package halo

import (
	"context"
	"sync"
	"testing"

	"github.com/dreamware/partdiff/internal/cluster"
	"github.com/dreamware/partdiff/internal/config"
	"github.com/dreamware/partdiff/internal/grid"
	"github.com/dreamware/partdiff/internal/partition"
	"github.com/dreamware/partdiff/internal/stencil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rankState struct {
	part  partition.Partition
	store *grid.Store
}

// sweepAndSync runs one Jacobi sweep plus synchronization on every rank of a
// local world and returns each rank's state and observed global residual.
func sweepAndSync(t *testing.T, cfg config.Config, size int) ([]rankState, []float64) {
	t.Helper()
	world := cluster.NewLocalWorld(size)
	states := make([]rankState, size)
	globals := make([]float64, size)

	var wg sync.WaitGroup
	for r := range size {
		p, err := partition.Compute(cfg.N(), r, size)
		require.NoError(t, err)
		s, err := grid.NewStore(cfg, p)
		require.NoError(t, err)
		states[r] = rankState{part: p, store: s}

		wg.Add(1)
		go func() {
			defer wg.Done()
			lo, hi := p.Interior()
			res := stencil.New(cfg, p.Offset()).Sweep(s.Buffer(1), s.Buffer(0), stencil.Task{Lo: lo, Hi: hi}, true)
			g, err := New(world.Comm(r), p).Step(context.Background(), s.Buffer(0), res)
			assert.NoError(t, err)
			globals[r] = g
		}()
	}
	wg.Wait()
	return states, globals
}

// TestExchangeFillsHalosFromNeighbors checks that after synchronization every
// halo row equals the neighbor's corresponding interior row.
func TestExchangeFillsHalosFromNeighbors(t *testing.T) {
	cfg := config.Default()
	cfg.Interlines = 1
	for _, size := range []int{2, 3, 5, 15} {
		states, globals := sweepAndSync(t, cfg, size)

		for r, st := range states {
			m := st.store.Buffer(0)
			lo, hi := st.part.Interior()
			if st.part.HasUpper() {
				up := states[r-1]
				_, uhi := up.part.Interior()
				assert.Equal(t, up.store.Buffer(0).Row(uhi-1), m.Row(lo-1), "size %d rank %d upper halo", size, r)
			}
			if st.part.HasLower() {
				down := states[r+1]
				dlo, _ := down.part.Interior()
				assert.Equal(t, down.store.Buffer(0).Row(dlo), m.Row(hi), "size %d rank %d lower halo", size, r)
			}
		}

		for _, g := range globals {
			assert.Equal(t, globals[0], g, "every rank sees the same global residual")
		}
		assert.InDelta(t, 0.5*(1-cfg.H()), globals[0], 1e-15)
	}
}

// TestGatherMatchesSingleRank compares the grid gathered from several ranks
// after one sweep with the same sweep on one rank.
func TestGatherMatchesSingleRank(t *testing.T) {
	cfg := config.Default()
	cfg.Interlines = 1
	n := cfg.N()

	whole, err := grid.NewStore(cfg, partition.Single(n))
	require.NoError(t, err)
	stencil.New(cfg, 0).Sweep(whole.Buffer(1), whole.Buffer(0), stencil.Task{Lo: 1, Hi: n}, false)

	const size = 4
	world := cluster.NewLocalWorld(size)
	var gathered *grid.Matrix
	var wg sync.WaitGroup
	for r := range size {
		p, err := partition.Compute(n, r, size)
		require.NoError(t, err)
		s, err := grid.NewStore(cfg, p)
		require.NoError(t, err)

		wg.Add(1)
		go func() {
			defer wg.Done()
			lo, hi := p.Interior()
			stencil.New(cfg, p.Offset()).Sweep(s.Buffer(1), s.Buffer(0), stencil.Task{Lo: lo, Hi: hi}, false)
			full, err := New(world.Comm(r), p).Gather(context.Background(), s.Buffer(0))
			assert.NoError(t, err)
			if r == 0 {
				gathered = full
			} else {
				assert.Nil(t, full)
			}
		}()
	}
	wg.Wait()

	require.NotNil(t, gathered)
	d, err := gathered.MaxAbsDiff(whole.Buffer(0))
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestSingleRankGatherCopies(t *testing.T) {
	cfg := config.Default()
	s, err := grid.NewStore(cfg, partition.Single(cfg.N()))
	require.NoError(t, err)

	hs := New(cluster.NewLocalWorld(1).Comm(0), partition.Single(cfg.N()))
	full, err := hs.Gather(context.Background(), s.Buffer(0))
	require.NoError(t, err)
	d, err := full.MaxAbsDiff(s.Buffer(0))
	require.NoError(t, err)
	assert.Zero(t, d)
	full.Set(1, 1, 5)
	assert.Zero(t, s.Buffer(0).At(1, 1))
}
