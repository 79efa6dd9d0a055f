// Package grid owns the numeric buffers of a solve.
// See doc.go for complete package documentation.
package grid

import (
	"errors"
	"fmt"
	"math"
)

// ErrAllocation is returned when a requested buffer cannot be represented.
var ErrAllocation = errors.New("grid allocation failed")

// Matrix is a dense row-major buffer of float64 values.
// The value at (i, j) lives at data[i*cols+j].
type Matrix struct {
	rows, cols int
	data       []float64
}

// NewMatrix allocates a zero-filled rows x cols matrix.
func NewMatrix(rows, cols int) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: invalid shape %dx%d", ErrAllocation, rows, cols)
	}
	if rows > math.MaxInt/8/cols {
		return nil, fmt.Errorf("%w: %dx%d values overflow", ErrAllocation, rows, cols)
	}
	return &Matrix{rows: rows, cols: cols, data: make([]float64, rows*cols)}, nil
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

// Row returns row i as a slice sharing the matrix storage. Its capacity ends
// at the row boundary, so indexing past column cols-1 panics instead of
// reading the next row.
func (m *Matrix) Row(i int) []float64 {
	if i < 0 || i >= m.rows {
		panic(fmt.Sprintf("grid: row %d out of range [0,%d)", i, m.rows))
	}
	off := i * m.cols
	return m.data[off : off+m.cols : off+m.cols]
}

// At returns the value at (i, j).
func (m *Matrix) At(i, j int) float64 { return m.Row(i)[j] }

// Set stores v at (i, j).
func (m *Matrix) Set(i, j int, v float64) { m.Row(i)[j] = v }

// SetRow copies src into row i.
func (m *Matrix) SetRow(i int, src []float64) {
	copy(m.Row(i), src)
}

// RowsRange returns rows [lo, hi) as one contiguous slice.
func (m *Matrix) RowsRange(lo, hi int) []float64 {
	if lo < 0 || hi > m.rows || lo > hi {
		panic(fmt.Sprintf("grid: rows [%d,%d) out of range [0,%d)", lo, hi, m.rows))
	}
	return m.data[lo*m.cols : hi*m.cols : hi*m.cols]
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	out := &Matrix{rows: m.rows, cols: m.cols, data: make([]float64, len(m.data))}
	copy(out.data, m.data)
	return out
}

// MaxAbsDiff returns the largest |m(i,j) - o(i,j)| over all cells.
// Both matrices must have the same shape.
func (m *Matrix) MaxAbsDiff(o *Matrix) (float64, error) {
	if m.rows != o.rows || m.cols != o.cols {
		return 0, fmt.Errorf("grid: shape mismatch %dx%d vs %dx%d", m.rows, m.cols, o.rows, o.cols)
	}
	var d float64
	for k, v := range m.data {
		d = math.Max(d, math.Abs(v-o.data[k]))
	}
	return d, nil
}
