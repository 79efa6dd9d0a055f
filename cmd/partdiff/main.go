// Package main implements partdiff, the single-process solver.
//
// It reads the six positional arguments, runs the solve with RANKS
// in-process ranks (default 1) of the requested number of worker goroutines
// each, and prints the statistics block and a 9x9 sample of the final grid.
//
// Configuration:
//   - positional arguments: see config.Usage
//   - PARTDIFF_CONFIG: YAML configuration used when no arguments are given
//   - RANKS: number of in-process ranks (default: 1)
//
// Example usage:
//
//	partdiff 4 2 100 1 2 100
//	RANKS=4 partdiff 2 1 50 2 1 1e-6
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dreamware/partdiff/internal/config"
	"github.com/dreamware/partdiff/internal/report"
	"github.com/dreamware/partdiff/internal/solver"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	// The first signal cancels the solve; a second one kills the process.
	context.AfterFunc(ctx, stop)
	code := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one solve and returns the process exit code: 0 on success,
// 1 for bad configuration, 2 for a failed solve.
func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(args, getenv)
	if err != nil {
		fmt.Fprintf(stderr, "partdiff: %v\n\nUsage: partdiff %s\n", err, config.Usage)
		return 1
	}
	ranks := 1
	if v := getenv("RANKS"); v != "" {
		if ranks, err = strconv.Atoi(v); err != nil {
			fmt.Fprintf(stderr, "partdiff: RANKS must be an integer, got %q\n", v)
			return 1
		}
	}

	log.Printf("solving N=%d with %s on %d ranks x %d workers", cfg.N(), cfg.Method, ranks, cfg.Workers)
	rep, err := solver.SolveLocal(ctx, cfg, ranks)
	if err != nil {
		fmt.Fprintf(stderr, "partdiff: %v\n", err)
		if errors.Is(err, config.ErrConfiguration) {
			return 1
		}
		return 2
	}

	st := report.Stats{Iterations: rep.Iterations, Residual: rep.Residual, Elapsed: rep.Elapsed}
	if err := report.Statistics(stdout, cfg, st, rep.Ranks); err != nil {
		fmt.Fprintf(stderr, "partdiff: %v\n", err)
		return 2
	}
	if err := report.Matrix(stdout, rep.Matrix, cfg.Interlines); err != nil {
		fmt.Fprintf(stderr, "partdiff: %v\n", err)
		return 2
	}
	return 0
}

func loadConfig(args []string, getenv func(string) string) (config.Config, error) {
	if len(args) == 0 {
		if path := getenv("PARTDIFF_CONFIG"); path != "" {
			return config.Load(path)
		}
	}
	return config.ParseArgs(args)
}
