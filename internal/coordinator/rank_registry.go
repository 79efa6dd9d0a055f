package coordinator

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/dreamware/partdiff/internal/cluster"
	"github.com/dreamware/partdiff/internal/config"
)

// ErrWorldFull is returned when a new node registers after every rank of the
// world has been taken.
var ErrWorldFull = errors.New("world is full")

// RankRegistry assigns ranks to nodes in registration order and publishes the
// process group once every rank is taken.
//
// Rank assignment:
//   - the first node to register becomes rank 0, the next rank 1, and so on
//   - a node that registers again under the same ID keeps its rank; only its
//     address is updated (a restarted node on a new port)
//   - once size nodes are registered, further IDs are rejected with ErrWorldFull
//
// The world is fixed for the lifetime of the registry. There is no
// unregistration: a solve cannot lose a rank and continue.
//
// Thread Safety:
// All methods are safe for concurrent use.
type RankRegistry struct {
	mu    sync.RWMutex
	size  int
	nodes []cluster.NodeInfo // index is rank
}

// NewRankRegistry creates a registry for a world of size ranks.
func NewRankRegistry(size int) *RankRegistry {
	return &RankRegistry{size: size, nodes: make([]cluster.NodeInfo, 0, size)}
}

// Register assigns node a rank and returns it.
//
// Returns:
//   - the rank of the node (unchanged on re-registration)
//   - an error if the ID or address is empty
//   - ErrWorldFull if node is new and every rank is taken
func (r *RankRegistry) Register(node cluster.NodeInfo) (int, error) {
	if node.ID == "" || node.Addr == "" {
		return -1, errors.New("node ID and address are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.nodes, func(n cluster.NodeInfo) bool { return n.ID == node.ID })
	if idx >= 0 {
		r.nodes[idx] = node
		return idx, nil
	}
	if len(r.nodes) >= r.size {
		return -1, fmt.Errorf("%w: %d of %d ranks taken, rejecting %s", ErrWorldFull, len(r.nodes), r.size, node.ID)
	}
	r.nodes = append(r.nodes, node)
	return len(r.nodes) - 1, nil
}

// Rank returns the rank of the node with the given ID, or -1.
func (r *RankRegistry) Rank(nodeID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.IndexFunc(r.nodes, func(n cluster.NodeInfo) bool { return n.ID == nodeID })
}

// Size is the number of ranks in the world.
func (r *RankRegistry) Size() int { return r.size }

// Ready reports whether every rank has been taken.
func (r *RankRegistry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes) == r.size
}

// Nodes returns a copy of the registered nodes in rank order.
func (r *RankRegistry) Nodes() []cluster.NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.nodes)
}

// World returns the process group. Ranks lists every node registered so far;
// Ready is set once the list is complete.
func (r *RankRegistry) World(cfg config.Config) cluster.WorldInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ranks := make([]cluster.RankInfo, len(r.nodes))
	for i, n := range r.nodes {
		ranks[i] = cluster.RankInfo{Rank: i, Node: n}
	}
	return cluster.WorldInfo{
		Ready:  len(r.nodes) == r.size,
		Size:   r.size,
		Ranks:  ranks,
		Config: cfg,
	}
}
