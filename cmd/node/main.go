// Package main implements the partdiff node, which runs one rank of a
// distributed solve.
//
// The node is a worker in the solve, responsible for:
//   - Registering with the coordinator and learning its rank
//   - Relaxing the rows of its partition with a pool of worker goroutines
//   - Exchanging halo rows directly with its neighbor ranks
//   - Gathering the final grid and reporting it (rank 0 only)
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│                  Node                   │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    POST /halo    - rows from neighbors  │
//	│    GET  /health  - liveness check       │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    Mailbox       - queued halo rows     │
//	│    HTTPComm      - sends + collectives  │
//	│    Solver        - the rank's sweeps    │
//	└─────────────────────────────────────────┘
//
// Configuration:
//   - NODE_ID: Unique node identifier (required)
//   - NODE_LISTEN: Listen address (default: ":8081")
//   - NODE_ADDR: Public address for peers and coordinator (default: "http://127.0.0.1:8081")
//   - COORDINATOR_ADDR: Coordinator URL (required)
//
// The solver configuration is not read here: every rank takes it from the
// coordinator's world description so all ranks solve the same problem.
//
// Example usage:
//
//	NODE_ID=node-1 \
//	NODE_LISTEN=:8081 \
//	NODE_ADDR=http://localhost:8081 \
//	COORDINATOR_ADDR=http://localhost:8080 \
//	./node
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamware/partdiff/internal/cluster"
	"github.com/dreamware/partdiff/internal/config"
	"github.com/dreamware/partdiff/internal/grid"
	"github.com/dreamware/partdiff/internal/report"
	"github.com/dreamware/partdiff/internal/solver"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
// This indirection enables test code to intercept fatal errors
// without actually terminating the test process.
var logFatal = log.Fatalf

// Retry pacing for registration and world polling; shortened in tests.
var (
	registerAttempts = 10
	registerBackoff  = 400 * time.Millisecond
	worldPoll        = 200 * time.Millisecond
)

// main starts the rank endpoints, joins the world and runs the solve. After
// the solve the node keeps serving /health until it is signalled, so the
// coordinator's monitor does not report a finished rank as lost.
//
// Exit codes:
//   - 0: Signalled after the solve
//   - 1: Missing configuration, failed registration or a failed solve
func main() {
	nodeID := mustGetenv("NODE_ID")
	listen := getenv("NODE_LISTEN", ":8081")
	public := getenv("NODE_ADDR", "http://127.0.0.1:8081")
	coord := mustGetenv("COORDINATOR_ADDR")

	box := cluster.NewMailbox()
	s := &http.Server{
		Addr:              listen,
		Handler:           cluster.Handler(box),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("node[%s] listening on %s (public %s)", nodeID, listen, public)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if register(ctx, coord, nodeID, public) {
		if err := run(ctx, coord, nodeID, box); err != nil {
			logFatal("node[%s] solve failed: %v", nodeID, err)
		}
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	log.Println("node stopped")
}

// register announces the node to the coordinator, retrying while the
// coordinator starts up. It reports whether registration succeeded; on
// persistent failure it calls logFatal, since a node outside the world has
// nothing to do.
func register(ctx context.Context, coord, id, addr string) bool {
	body := cluster.RegisterRequest{Node: cluster.NodeInfo{ID: id, Addr: addr}}
	var lastErr error

	for i := 0; i < registerAttempts; i++ {
		var info cluster.RankInfo
		lastErr = cluster.PostJSON(ctx, coord+"/register", body, &info)
		if lastErr == nil {
			log.Printf("node[%s] registered with coordinator @ %s as rank %d", id, coord, info.Rank)
			return true
		}
		log.Printf("register retry %d: %v", i+1, lastErr)
		select {
		case <-time.After(registerBackoff):
		case <-ctx.Done():
			logFatal("failed to register with coordinator: %v", ctx.Err())
			return false
		}
	}

	logFatal("failed to register with coordinator: %v", lastErr)
	return false
}

// waitForWorld polls the coordinator until every rank has registered.
func waitForWorld(ctx context.Context, coord string) (cluster.WorldInfo, error) {
	for {
		var world cluster.WorldInfo
		err := cluster.GetJSON(ctx, coord+"/world", &world)
		switch {
		case err == nil && world.Ready:
			return world, nil
		case err != nil:
			log.Printf("world poll: %v", err)
		}
		select {
		case <-time.After(worldPoll):
		case <-ctx.Done():
			return cluster.WorldInfo{}, ctx.Err()
		}
	}
}

// run waits for the world, solves this node's rank and, on rank 0, posts the
// result report to the coordinator.
func run(ctx context.Context, coord, nodeID string, box *cluster.Mailbox) error {
	world, err := waitForWorld(ctx, coord)
	if err != nil {
		return fmt.Errorf("wait for world: %w", err)
	}
	comm, err := cluster.NewHTTPCommFromWorld(world, nodeID, coord, box)
	if err != nil {
		return err
	}
	log.Printf("node[%s] is rank %d of %d", nodeID, comm.Rank(), comm.Size())

	res, full, err := solver.Solve(ctx, world.Config, comm)
	if err != nil {
		return err
	}
	if comm.Rank() != 0 {
		return nil
	}

	rep, err := buildReport(world.Config, res, full, comm.Size())
	if err != nil {
		return err
	}
	if err := cluster.PostJSON(ctx, coord+"/result", rep, nil); err != nil {
		return fmt.Errorf("post result: %w", err)
	}
	log.Printf("node[%s] reported %d iterations, residual %e", nodeID, rep.Iterations, rep.Residual)
	return nil
}

// buildReport packs the outcome of rank 0 for the coordinator. Only the
// display sample of the grid travels, not the full matrix.
func buildReport(cfg config.Config, res solver.Result, full *grid.Matrix, ranks int) (cluster.ResultReport, error) {
	sample, err := report.Sample(full, cfg.Interlines)
	if err != nil {
		return cluster.ResultReport{}, err
	}
	return cluster.ResultReport{
		Ranks:      ranks,
		Iterations: res.Iterations,
		Residual:   res.Residual,
		ElapsedMS:  res.Elapsed.Milliseconds(),
		Config:     cfg,
		Matrix:     sample,
	}, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// mustGetenv retrieves a required environment variable, terminating the
// program if it's not set.
func mustGetenv(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	logFatal("missing env %s", k)
	return ""
}
