// Package grid provides the double-buffered numeric storage of the solver.
//
// # Overview
//
// A Matrix is a flat row-major []float64 with an explicit index formula
// (i*cols + j). Row hands out capacity-limited slices so the stencil can run
// on plain slices while every access remains bounds checked.
//
// A Store groups the matrices a method needs:
//
//	Gauss-Seidel:  [ M0 ]          read == write, updated in place
//	Jacobi:        [ M0 | M1 ]     read and write swap after every sweep
//
// Under row distribution each matrix covers only the rank's local rows:
//
//	local 0         upper halo, or global row 0 on the first rank
//	local 1..k      interior rows relaxed by this rank
//	local k+1       lower halo, or global row N on the last rank
//
// # Ownership
//
// The convergence controller owns the Store for the lifetime of one solve.
// Halo rows are written only by the synchronizer, interior rows only by the
// stencil workers, and border columns never after initialization.
package grid
