// Package parallel fans one sweep out over a fixed number of worker
// goroutines within a rank and reduces their residuals.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/partdiff/internal/grid"
	"github.com/dreamware/partdiff/internal/stencil"
)

// Chunk is the band of local rows [Lo, Hi) assigned to one worker.
type Chunk struct {
	Lo, Hi int
}

// Split divides [lo, hi) into contiguous chunks of (hi-lo)/workers rows; the
// last chunk takes the remainder. The first chunk always starts at lo. When
// there are more workers than rows, one chunk per row is returned.
func Split(lo, hi, workers int) []Chunk {
	rows := hi - lo
	if rows <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > rows {
		workers = rows
	}

	size := rows / workers
	chunks := make([]Chunk, workers)
	for w := range chunks {
		chunks[w] = Chunk{Lo: lo + w*size, Hi: lo + (w+1)*size}
	}
	chunks[workers-1].Hi = hi
	return chunks
}

// Driver runs the kernel over a rank's interior rows with a fixed worker count.
type Driver struct {
	kernel *stencil.Kernel
	chunks []Chunk
}

// NewDriver splits the local rows [lo, hi) for workers goroutines.
func NewDriver(kernel *stencil.Kernel, lo, hi, workers int) *Driver {
	return &Driver{kernel: kernel, chunks: Split(lo, hi, workers)}
}

// Chunks returns the row assignment of each worker.
func (d *Driver) Chunks() []Chunk { return d.chunks }

// Sweep relaxes every chunk, one goroutine per chunk, and returns the largest
// residual of all workers. It returns only after every worker has finished,
// so all writes are visible to the caller.
//
// When read and write are the same matrix (Gauss-Seidel) and there is more
// than one chunk, the rows bordering each chunk are snapshotted before the
// workers start. A worker then reads its neighbors' border rows from the
// snapshot instead of from rows another worker is rewriting.
func (d *Driver) Sweep(ctx context.Context, read, write *grid.Matrix, track bool) (float64, error) {
	tasks := make([]stencil.Task, len(d.chunks))
	inPlace := read == write && len(d.chunks) > 1
	for w, c := range d.chunks {
		tasks[w] = stencil.Task{Lo: c.Lo, Hi: c.Hi}
		if inPlace {
			if w > 0 {
				tasks[w].Above = append([]float64(nil), read.Row(c.Lo-1)...)
			}
			if w < len(d.chunks)-1 {
				tasks[w].Below = append([]float64(nil), read.Row(c.Hi)...)
			}
		}
	}

	residuals := make([]float64, len(tasks))
	g, ctx := errgroup.WithContext(ctx)
	for w := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			residuals[w] = d.kernel.Sweep(read, write, tasks[w], track)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var maxres float64
	for _, r := range residuals {
		maxres = max(maxres, r)
	}
	return maxres, nil
}
