// Package main implements the partdiff coordinator, which introduces the rank
// processes of a distributed solve to each other, serves their collectives
// and collects the result.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│              Coordinator                │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    POST /register    - join the world   │
//	│    GET  /world       - ranks + config   │
//	│    POST /collective  - max / barrier    │
//	│    POST /result      - rank 0 report    │
//	│    GET  /result      - fetch report     │
//	│    GET  /ranks       - rank health      │
//	│    GET  /health      - liveness         │
//	└─────────────────────────────────────────┘
//
// Configuration:
//   - COORDINATOR_ADDR: Listen address (default: ":8080")
//   - RANK_COUNT: Number of rank processes in the world (default: 1)
//   - PARTDIFF_CONFIG: Path of a YAML solver configuration (optional)
//   - PARTDIFF_*: Solver configuration from the environment when no file is
//     given (PARTDIFF_WORKERS, PARTDIFF_METHOD, PARTDIFF_INTERLINES, ...)
//   - HEALTH_INTERVAL: Rank health check interval (default: "5s")
//
// Example usage:
//
//	RANK_COUNT=2 PARTDIFF_INTERLINES=50 PARTDIFF_TERMINATION=precision \
//	PARTDIFF_PRECISION=1e-6 ./coordinator
//
//	curl localhost:8080/result
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dreamware/partdiff/internal/cluster"
	"github.com/dreamware/partdiff/internal/config"
	"github.com/dreamware/partdiff/internal/coordinator"
	"github.com/dreamware/partdiff/internal/report"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	addr := getenv("COORDINATOR_ADDR", ":8080")

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		logFatal("config: %v", err)
		return
	}
	ranks, err := rankCount(os.Getenv)
	if err != nil {
		logFatal("config: %v", err)
		return
	}
	if err := cfg.ValidateRanks(ranks); err != nil {
		logFatal("config: %v", err)
		return
	}
	interval, err := time.ParseDuration(getenv("HEALTH_INTERVAL", "5s"))
	if err != nil {
		logFatal("HEALTH_INTERVAL: %v", err)
		return
	}

	srv := newServer(cfg, ranks, interval, os.Stdout)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("coordinator listening on %s for %d ranks (%s, N=%d)", addr, ranks, cfg.Method, cfg.N())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.monitor.Start(ctx, srv.registry.Nodes)
	go srv.watchResult(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	srv.monitor.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Println("coordinator stopped")
}

// server holds the coordinator state of one solve.
type server struct {
	cfg        config.Config
	registry   *coordinator.RankRegistry
	collective *coordinator.CollectiveService
	results    *coordinator.ResultStore
	monitor    *coordinator.HealthMonitor
	out        io.Writer // destination of the human-readable report
}

func newServer(cfg config.Config, ranks int, interval time.Duration, out io.Writer) *server {
	return &server{
		cfg:        cfg,
		registry:   coordinator.NewRankRegistry(ranks),
		collective: coordinator.NewCollectiveService(ranks),
		results:    coordinator.NewResultStore(),
		monitor:    coordinator.NewHealthMonitor(interval),
		out:        out,
	}
}

// watchResult waits for the report of the solve and logs how many ranks were
// still answering health checks when it arrived. It reports whether a result
// arrived before ctx ended.
func (s *server) watchResult(ctx context.Context) bool {
	select {
	case <-s.results.Done():
	case <-ctx.Done():
		return false
	}
	nodes := s.registry.Nodes()
	healthy := 0
	for _, n := range nodes {
		if s.monitor.IsHealthy(n.ID) {
			healthy++
		}
	}
	log.Printf("solve complete; %d of %d ranks answering health checks", healthy, len(nodes))
	return true
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/world", s.handleWorld)
	mux.HandleFunc("/collective", s.handleCollective)
	mux.HandleFunc("/result", s.handleResult)
	mux.HandleFunc("/ranks", s.handleRanks)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	rank, err := s.registry.Register(req.Node)
	switch {
	case errors.Is(err, coordinator.ErrWorldFull):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Printf("rank[%d] registered: %s @ %s", rank, req.Node.ID, req.Node.Addr)
	if s.registry.Ready() {
		log.Printf("world of %d ranks complete", s.registry.Size())
	}
	writeJSON(w, cluster.RankInfo{Rank: rank, Node: req.Node})
}

func (s *server) handleWorld(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.registry.World(s.cfg))
}

// handleCollective blocks until every rank has joined the request's round.
func (s *server) handleCollective(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.CollectiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	resp, err := s.collective.Join(r.Context(), req)
	switch {
	case errors.Is(err, cluster.ErrRoundMismatch):
		log.Printf("rank[%d] collective rejected: %v", req.Rank, err)
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, cluster.ErrAborted):
		log.Printf("rank[%d] collective failed: %v", req.Rank, err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, resp)
}

// rankStatus is one entry of the /ranks listing.
type rankStatus struct {
	Node             cluster.NodeInfo `json:"node"`
	Status           string           `json:"status"`
	LastCheck        time.Time        `json:"last_check"`
	LastHealthy      time.Time        `json:"last_healthy"`
	Rank             int              `json:"rank"`
	ConsecutiveFails int              `json:"consecutive_fails"`
}

// handleRanks lists the registered ranks in rank order with their last
// health check. Ranks the monitor has not reached yet are "unknown".
func (s *server) handleRanks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	health := s.monitor.All()
	nodes := s.registry.Nodes()
	out := make([]rankStatus, len(nodes))
	for rank, n := range nodes {
		st := rankStatus{Rank: rank, Node: n, Status: coordinator.StatusUnknown}
		if h, ok := health[n.ID]; ok {
			st.Status = h.Status
			st.LastCheck = h.LastCheck
			st.LastHealthy = h.LastHealthy
			st.ConsecutiveFails = h.ConsecutiveFails
		}
		out[rank] = st
	}
	writeJSON(w, out)
}

func (s *server) handleResult(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var rep cluster.ResultReport
		if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		s.results.Set(rep)
		log.Printf("result received: %d iterations, residual %e, %d ms", rep.Iterations, rep.Residual, rep.ElapsedMS)
		if err := printReport(s.out, rep); err != nil {
			log.Printf("print report: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		rep, ok := s.results.Get()
		if !ok {
			http.Error(w, "no result yet", http.StatusNotFound)
			return
		}
		writeJSON(w, rep)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// printReport writes the statistics block and the matrix sample of rep.
func printReport(w io.Writer, rep cluster.ResultReport) error {
	st := report.Stats{
		Iterations: rep.Iterations,
		Residual:   rep.Residual,
		Elapsed:    time.Duration(rep.ElapsedMS) * time.Millisecond,
	}
	if err := report.Statistics(w, rep.Config, st, rep.Ranks); err != nil {
		return err
	}
	return report.Rows(w, rep.Matrix)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// loadConfig reads the solver configuration from the YAML file named by
// PARTDIFF_CONFIG, or from PARTDIFF_* variables when no file is named.
func loadConfig(getenv func(string) string) (config.Config, error) {
	if path := getenv("PARTDIFF_CONFIG"); path != "" {
		return config.Load(path)
	}
	return config.FromEnv(getenv)
}

func rankCount(getenv func(string) string) (int, error) {
	v := getenv("RANK_COUNT")
	if v == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("RANK_COUNT must be a positive integer, got %q", v)
	}
	return n, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
