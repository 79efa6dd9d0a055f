package coordinator

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dreamware/partdiff/internal/cluster"
)

// Rank health states.
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// RankHealth is the last known liveness of one rank process.
type RankHealth struct {
	LastCheck        time.Time
	LastHealthy      time.Time
	NodeID           string
	Status           string
	Rank             int
	ConsecutiveFails int
}

// HealthMonitor polls the /health endpoint of every registered rank and logs
// ranks that stop answering.
//
// The monitor only observes. A solve has no way to replace a rank, so a rank
// marked unhealthy is reported in the coordinator log and through All. A rank
// that dies inside a collective drops its /collective request, which aborts
// the round for the other ranks.
//
// Thread Safety:
// All methods are safe for concurrent use.
type HealthMonitor struct {
	ranks       map[string]*RankHealth  // keyed by node ID
	httpClient  *http.Client            // client for the default check
	checkFunc   func(addr string) error // replaceable for tests; guarded by mu
	ctx         context.Context         // internal cancellation for Stop
	cancel      context.CancelFunc
	interval    time.Duration
	timeout     time.Duration
	mu          sync.RWMutex // protects ranks and checkFunc
	wg          sync.WaitGroup
	maxFailures int // consecutive failures before a rank is unhealthy
}

// NewHealthMonitor creates a monitor that checks every rank each interval.
// A rank is marked unhealthy after 3 consecutive failed checks.
//
// Example:
//
//	monitor := NewHealthMonitor(5 * time.Second)
//	go monitor.Start(ctx, registry.Nodes)
//	defer monitor.Stop()
func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	h := &HealthMonitor{
		interval:    interval,
		timeout:     2 * time.Second,
		maxFailures: 3,
		ranks:       make(map[string]*RankHealth),
		httpClient:  &http.Client{Timeout: 2 * time.Second},
		ctx:         ctx,
		cancel:      cancel,
	}
	h.checkFunc = h.defaultHealthCheck
	return h
}

// Start checks the ranks returned by nodes, indexed by rank, once right away
// and then every interval. It blocks until ctx is canceled or Stop is called.
func (h *HealthMonitor) Start(ctx context.Context, nodes func() []cluster.NodeInfo) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	log.Printf("health monitor started with interval %v", h.interval)
	h.checkAll(nodes())

	for {
		select {
		case <-ticker.C:
			h.checkAll(nodes())
		case <-ctx.Done():
			log.Println("health monitor stopping: context canceled")
			return
		case <-h.ctx.Done():
			log.Println("health monitor stopping")
			return
		}
	}
}

// Stop cancels the monitoring loop and waits for it to return.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
}

func (h *HealthMonitor) checkAll(nodes []cluster.NodeInfo) {
	for rank, node := range nodes {
		h.checkRank(rank, node)
	}
}

// checkRank runs one check without holding the lock and then applies the
// outcome. Status changes are logged once, not on every tick.
func (h *HealthMonitor) checkRank(rank int, node cluster.NodeInfo) {
	h.mu.Lock()
	health, ok := h.ranks[node.ID]
	if !ok {
		now := time.Now()
		health = &RankHealth{NodeID: node.ID, Rank: rank, Status: StatusUnknown, LastCheck: now, LastHealthy: now}
		h.ranks[node.ID] = health
	}
	check := h.checkFunc
	h.mu.Unlock()

	err := check(node.Addr)

	h.mu.Lock()
	defer h.mu.Unlock()

	health.LastCheck = time.Now()
	health.Rank = rank
	if err != nil {
		health.ConsecutiveFails++
		log.Printf("rank[%d] %s health check failed (%d/%d): %v",
			rank, node.ID, health.ConsecutiveFails, h.maxFailures, err)
		if health.ConsecutiveFails >= h.maxFailures && health.Status != StatusUnhealthy {
			health.Status = StatusUnhealthy
			log.Printf("rank[%d] %s unhealthy after %d failures; the solve cannot progress without it",
				rank, node.ID, health.ConsecutiveFails)
		}
		return
	}

	if health.Status == StatusUnhealthy {
		log.Printf("rank[%d] %s answering again", rank, node.ID)
	}
	health.Status = StatusHealthy
	health.ConsecutiveFails = 0
	health.LastHealthy = time.Now()
}

// defaultHealthCheck GETs addr/health. addr may be a base URL or host:port.
func (h *HealthMonitor) defaultHealthCheck(addr string) error {
	url := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		url = "http://" + addr
	}
	if !strings.HasSuffix(url, "/health") {
		url = strings.TrimRight(url, "/") + "/health"
	}

	ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// All returns copies of every health record keyed by node ID.
func (h *HealthMonitor) All() map[string]RankHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]RankHealth, len(h.ranks))
	for id, health := range h.ranks {
		out[id] = *health
	}
	return out
}

// IsHealthy reports whether nodeID passed its last check.
func (h *HealthMonitor) IsHealthy(nodeID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	health, ok := h.ranks[nodeID]
	return ok && health.Status == StatusHealthy
}

// SetCheckFunction replaces the HTTP check, mainly for tests.
func (h *HealthMonitor) SetCheckFunction(fn func(addr string) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkFunc = fn
}
