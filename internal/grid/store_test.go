package grid

import (
	"testing"

	"github.com/dreamware/partdiff/internal/config"
	"github.com/dreamware/partdiff/internal/partition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrixAccessors(t *testing.T) {
	m, err := NewMatrix(3, 4)
	require.NoError(t, err)

	m.Set(1, 2, 7.5)
	assert.Equal(t, 7.5, m.At(1, 2))
	assert.Equal(t, []float64{0, 0, 7.5, 0}, m.Row(1))
	assert.Len(t, m.RowsRange(1, 3), 8)

	c := m.Clone()
	c.Set(1, 2, 1)
	assert.Equal(t, 7.5, m.At(1, 2), "clone must not alias")

	d, err := m.MaxAbsDiff(c)
	require.NoError(t, err)
	assert.Equal(t, 6.5, d)

	assert.Panics(t, func() { m.At(3, 0) })
	assert.Panics(t, func() { m.At(0, 4) }, "column past the row must not read the next row")
	assert.Panics(t, func() { _ = m.Row(-1) })
}

func TestNewMatrixRejectsBadShapes(t *testing.T) {
	_, err := NewMatrix(0, 3)
	assert.ErrorIs(t, err, ErrAllocation)

	_, err = NewMatrix(1<<40, 1<<40)
	assert.ErrorIs(t, err, ErrAllocation)
}

// TestStoreLinearBorders checks the full single-rank border profile for N = 8.
func TestStoreLinearBorders(t *testing.T) {
	cfg := config.Default()
	s, err := NewStore(cfg, partition.Single(cfg.N()))
	require.NoError(t, err)
	require.Equal(t, 2, s.Count())

	h := cfg.H()
	for _, idx := range []int{0, 1} {
		m := s.Buffer(idx)
		require.Equal(t, 9, m.Rows())
		require.Equal(t, 9, m.Cols())
		for i := 1; i < 8; i++ {
			assert.InDelta(t, 1-h*float64(i), m.At(i, 0), 1e-15)
			assert.InDelta(t, h*float64(i), m.At(i, 8), 1e-15)
			assert.InDelta(t, 1-h*float64(i), m.At(0, i), 1e-15)
			assert.InDelta(t, h*float64(i), m.At(8, i), 1e-15)
			for j := 1; j < 8; j++ {
				assert.Zero(t, m.At(i, j))
			}
		}
		assert.Equal(t, 1.0, m.At(0, 0))
		assert.Equal(t, 0.0, m.At(0, 8))
		assert.Equal(t, 0.0, m.At(8, 0))
		assert.Equal(t, 1.0, m.At(8, 8))
	}
}

func TestStoreSinusoidalBordersAreZero(t *testing.T) {
	cfg := config.Default()
	cfg.Forcing = config.ForcingSinusoidal
	cfg.Method = config.GaussSeidel
	s, err := NewStore(cfg, partition.Single(cfg.N()))
	require.NoError(t, err)
	require.Equal(t, 1, s.Count())

	m := s.Buffer(0)
	for i := 0; i < m.Rows(); i++ {
		for j := 0; j < m.Cols(); j++ {
			assert.Zero(t, m.At(i, j))
		}
	}
}

// TestStoreDistributedMatchesSingle checks that every rank initializes its
// stored rows exactly like the corresponding rows of the single-rank grid.
func TestStoreDistributedMatchesSingle(t *testing.T) {
	cfg := config.Default()
	cfg.Interlines = 1
	n := cfg.N()

	whole, err := NewStore(cfg, partition.Single(n))
	require.NoError(t, err)

	parts, err := partition.All(n, 4)
	require.NoError(t, err)
	for _, p := range parts {
		s, err := NewStore(cfg, p)
		require.NoError(t, err)
		m := s.Buffer(0)
		require.Equal(t, p.LocalRows(), m.Rows())
		for l := 0; l < m.Rows(); l++ {
			assert.Equal(t, whole.Buffer(0).Row(p.Global(l)), m.Row(l), "rank %d local row %d", p.Rank, l)
		}
	}
}

func TestStoreRejectsMismatchedPartition(t *testing.T) {
	cfg := config.Default()
	_, err := NewStore(cfg, partition.Single(16))
	assert.Error(t, err)
}

func TestStoreBytes(t *testing.T) {
	cfg := config.Default()
	n := cfg.N()
	s, err := NewStore(cfg, partition.Single(n))
	require.NoError(t, err)
	assert.Equal(t, cfg.Matrices()*(n+1)*(n+1)*8, s.Bytes())

	parts, err := partition.All(n, 3)
	require.NoError(t, err)
	for _, p := range parts {
		s, err := NewStore(cfg, p)
		require.NoError(t, err)
		assert.Equal(t, BufferBytes(cfg.Matrices(), p), s.Bytes(), "rank %d", p.Rank)
		assert.Equal(t, cfg.Matrices()*p.LocalRows()*(n+1)*8, s.Bytes(), "rank %d", p.Rank)
	}
}
