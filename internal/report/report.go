// Package report renders the outcome of a solve for people: a statistics
// block and a 9x9 sample of the final grid.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dreamware/partdiff/internal/config"
	"github.com/dreamware/partdiff/internal/grid"
	"github.com/dreamware/partdiff/internal/partition"
)

// SampleSize is the number of rows and columns in a displayed sample.
const SampleSize = 9

// Stats is what a finished solve reports about itself.
type Stats struct {
	Iterations int
	Residual   float64
	Elapsed    time.Duration
}

// Memory returns the buffer memory of a solve over ranks ranks in MiB. Every
// rank stores its owned rows plus one halo or border row on each side.
func Memory(cfg config.Config, ranks int) (float64, error) {
	parts, err := partition.All(cfg.N(), ranks)
	if err != nil {
		return 0, err
	}
	var bytes int
	for _, p := range parts {
		bytes += grid.BufferBytes(cfg.Matrices(), p)
	}
	return float64(bytes) / 1024 / 1024, nil
}

// Statistics writes the statistics block of a solve of cfg over ranks ranks.
func Statistics(w io.Writer, cfg config.Config, st Stats, ranks int) error {
	mib, err := Memory(cfg, ranks)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Calculation time:   %f s\n", st.Elapsed.Seconds())
	fmt.Fprintf(&b, "Memory:             %f MiB\n", mib)
	fmt.Fprintf(&b, "Method:             %s\n", methodName(cfg.Method))
	fmt.Fprintf(&b, "Interlines:         %d\n", cfg.Interlines)
	fmt.Fprintf(&b, "Forcing function:   %s\n", forcingName(cfg.Forcing))
	fmt.Fprintf(&b, "Termination:        %s\n", terminationName(cfg.Termination))
	fmt.Fprintf(&b, "Ranks x workers:    %d x %d\n", ranks, cfg.Workers)
	fmt.Fprintf(&b, "Iterations:         %d\n", st.Iterations)
	fmt.Fprintf(&b, "Residual norm:      %e\n", st.Residual)
	b.WriteString("\n")

	_, err = io.WriteString(w, b.String())
	return err
}

func methodName(m config.Method) string {
	if m == config.GaussSeidel {
		return "Gauss-Seidel"
	}
	return "Jacobi"
}

func forcingName(f config.Forcing) string {
	if f == config.ForcingSinusoidal {
		return "f(x,y) = 2 * pi^2 * sin(pi * x) * sin(pi * y)"
	}
	return "f(x,y) = 0"
}

func terminationName(t config.Termination) string {
	if t == config.TermPrecision {
		return "Sufficient precision"
	}
	return "Number of iterations"
}

// Sample picks rows and columns 0, k, 2k, ... 8k of the full grid m, with
// k = interlines+1. These are the border lines and the seven lines the grid
// was refined between.
func Sample(m *grid.Matrix, interlines int) ([][]float64, error) {
	step := interlines + 1
	want := (SampleSize-1)*step + 1
	if m == nil || m.Rows() != want || m.Cols() != want {
		return nil, fmt.Errorf("report: sample needs a %dx%d grid for %d interlines", want, want, interlines)
	}

	out := make([][]float64, SampleSize)
	for y := range SampleSize {
		row := m.Row(y * step)
		out[y] = make([]float64, SampleSize)
		for x := range SampleSize {
			out[y][x] = row[x*step]
		}
	}
	return out, nil
}

// Matrix writes the sample of m as nine lines of nine %7.4f fields.
func Matrix(w io.Writer, m *grid.Matrix, interlines int) error {
	s, err := Sample(m, interlines)
	if err != nil {
		return err
	}
	return Rows(w, s)
}

// Rows writes an already sampled grid, such as the one carried by a
// cluster.ResultReport.
func Rows(w io.Writer, sample [][]float64) error {
	var b strings.Builder
	b.WriteString("Matrix:\n")
	for _, row := range sample {
		for _, v := range row {
			fmt.Fprintf(&b, "%7.4f", v)
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
