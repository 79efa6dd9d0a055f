package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dreamware/partdiff/internal/cluster"
	"github.com/dreamware/partdiff/internal/config"
	"github.com/dreamware/partdiff/internal/coordinator"
	"github.com/dreamware/partdiff/internal/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func fastRetries(t *testing.T) {
	t.Helper()
	attempts, backoff, poll := registerAttempts, registerBackoff, worldPoll
	registerAttempts, registerBackoff, worldPoll = 4, 5*time.Millisecond, 5*time.Millisecond
	t.Cleanup(func() { registerAttempts, registerBackoff, worldPoll = attempts, backoff, poll })
}

func mockFatal(t *testing.T) *bool {
	t.Helper()
	old := logFatal
	called := false
	logFatal = func(string, ...interface{}) { called = true }
	t.Cleanup(func() { logFatal = old })
	return &called
}

func TestGetenv(t *testing.T) {
	t.Setenv("PARTDIFF_NODE_TEST", "value")
	assert.Equal(t, "value", getenv("PARTDIFF_NODE_TEST", "default"))
	assert.Equal(t, "default", getenv("PARTDIFF_NODE_UNSET", "default"))
}

func TestMustGetenv(t *testing.T) {
	t.Run("variable set", func(t *testing.T) {
		t.Setenv("MUST_HAVE_VAR", "required_value")
		assert.Equal(t, "required_value", mustGetenv("MUST_HAVE_VAR"))
	})
	t.Run("variable not set", func(t *testing.T) {
		fatal := mockFatal(t)
		_ = mustGetenv("UNSET_REQUIRED_VAR")
		assert.True(t, *fatal)
	})
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name        string
		failures    int32
		expectFatal bool
	}{
		{"first try", 0, false},
		{"after retries", 2, false},
		{"gives up", 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fastRetries(t)
			fatal := mockFatal(t)

			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/register", r.URL.Path)
				var req cluster.RegisterRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "test-node", req.Node.ID)
				assert.Equal(t, "http://localhost:8081", req.Node.Addr)

				if calls.Add(1) <= tt.failures {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				_ = json.NewEncoder(w).Encode(cluster.RankInfo{Rank: 0, Node: req.Node})
			}))
			defer srv.Close()

			ok := register(context.Background(), srv.URL, "test-node", "http://localhost:8081")
			assert.Equal(t, !tt.expectFatal, ok)
			assert.Equal(t, tt.expectFatal, *fatal)
		})
	}
}

func TestRegisterWithUnreachableServer(t *testing.T) {
	fastRetries(t)
	fatal := mockFatal(t)

	assert.False(t, register(context.Background(), "http://127.0.0.1:1", "test-node", "http://localhost:8081"))
	assert.True(t, *fatal)
}

func TestWaitForWorld(t *testing.T) {
	fastRetries(t)

	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ready := polls.Add(1) >= 3
		_ = json.NewEncoder(w).Encode(cluster.WorldInfo{Ready: ready, Size: 1})
	}))
	defer srv.Close()

	world, err := waitForWorld(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, world.Ready)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	never := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(cluster.WorldInfo{})
	}))
	defer never.Close()
	_, err = waitForWorld(ctx, never.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildReport(t *testing.T) {
	cfg := config.Default()
	rep, err := solver.SolveLocal(context.Background(), cfg, 1)
	require.NoError(t, err)

	res := solver.Result{Iterations: rep.Iterations, Residual: rep.Residual, Elapsed: 1500 * time.Millisecond}
	out, err := buildReport(cfg, res, rep.Matrix, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Ranks)
	assert.Equal(t, int64(1500), out.ElapsedMS)
	assert.Equal(t, cfg, out.Config)
	require.Len(t, out.Matrix, 9)
	assert.Equal(t, rep.Matrix.At(8, 8), out.Matrix[8][8])

	_, err = buildReport(cfg, res, nil, 1)
	assert.Error(t, err)
}

// fakeCoordinator serves /world, /collective and /result for a fixed world.
type fakeCoordinator struct {
	mu     sync.Mutex
	world  cluster.WorldInfo
	coll   *coordinator.CollectiveService
	result *cluster.ResultReport
}

func (f *fakeCoordinator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/world":
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(f.world)
	case "/collective":
		var req cluster.CollectiveRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp, err := f.coll.Join(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		_ = json.NewEncoder(w).Encode(resp)
	case "/result":
		var rep cluster.ResultReport
		_ = json.NewDecoder(r.Body).Decode(&rep)
		f.mu.Lock()
		f.result = &rep
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

// TestRunReportsFromRankZero runs two nodes through run() and checks that
// the report posted by rank 0 matches an in-process solve.
func TestRunReportsFromRankZero(t *testing.T) {
	cfg := config.Default()
	cfg.Interlines = 1
	cfg.Iterations = 25

	const ranks = 2
	boxes := make([]*cluster.Mailbox, ranks)
	world := cluster.WorldInfo{Ready: true, Size: ranks, Config: cfg}
	for r := range ranks {
		boxes[r] = cluster.NewMailbox()
		ts := httptest.NewServer(cluster.Handler(boxes[r]))
		t.Cleanup(ts.Close)
		id := []string{"node-a", "node-b"}[r]
		world.Ranks = append(world.Ranks, cluster.RankInfo{Rank: r, Node: cluster.NodeInfo{ID: id, Addr: ts.URL}})
	}

	fake := &fakeCoordinator{world: world, coll: coordinator.NewCollectiveService(ranks)}
	coord := httptest.NewServer(fake)
	defer coord.Close()

	var g errgroup.Group
	for r, id := range []string{"node-a", "node-b"} {
		g.Go(func() error { return run(context.Background(), coord.URL, id, boxes[r]) })
	}
	require.NoError(t, g.Wait())

	want, err := solver.SolveLocal(context.Background(), cfg, 1)
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.NotNil(t, fake.result)
	assert.Equal(t, ranks, fake.result.Ranks)
	assert.Equal(t, 25, fake.result.Iterations)
	assert.Equal(t, want.Residual, fake.result.Residual)
	assert.Equal(t, want.Matrix.At(2, 2), fake.result.Matrix[1][1])
}

func TestRunRejectsUnknownNode(t *testing.T) {
	world := cluster.WorldInfo{Ready: true, Size: 1, Config: config.Default(),
		Ranks: []cluster.RankInfo{{Rank: 0, Node: cluster.NodeInfo{ID: "node-a", Addr: "http://a"}}}}
	fake := &fakeCoordinator{world: world, coll: coordinator.NewCollectiveService(1)}
	coord := httptest.NewServer(fake)
	defer coord.Close()

	err := run(context.Background(), coord.URL, "node-z", cluster.NewMailbox())
	assert.Error(t, err)
}
