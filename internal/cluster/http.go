package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// HTTPComm is the communicator of a rank running in its own process.
//
// Rows travel peer-to-peer: Isend posts a HaloMessage to the destination
// rank's /halo endpoint, whose handler queues it in the destination's
// Mailbox. Collectives go through the coordinator's /collective endpoint,
// which answers every rank of a round once the last one has joined.
type HTTPComm struct {
	rank  int
	peers []string // base URL per rank
	coord string   // coordinator base URL
	box   *Mailbox
	round uint64
}

// NewHTTPComm builds the communicator of rank. peers[i] is the base URL of
// rank i, coord the coordinator base URL. box must be the same Mailbox the
// rank's Handler delivers into.
func NewHTTPComm(rank int, peers []string, coord string, box *Mailbox) *HTTPComm {
	trimmed := make([]string, len(peers))
	for i, p := range peers {
		trimmed[i] = strings.TrimRight(p, "/")
	}
	return &HTTPComm{rank: rank, peers: trimmed, coord: strings.TrimRight(coord, "/"), box: box}
}

// NewHTTPCommFromWorld resolves the rank of nodeID in world.
func NewHTTPCommFromWorld(world WorldInfo, nodeID, coord string, box *Mailbox) (*HTTPComm, error) {
	peers := make([]string, world.Size)
	rank := -1
	for _, r := range world.Ranks {
		if r.Rank < 0 || r.Rank >= world.Size {
			return nil, fmt.Errorf("%w: world lists rank %d of %d", ErrInvalidRank, r.Rank, world.Size)
		}
		peers[r.Rank] = r.Node.Addr
		if r.Node.ID == nodeID {
			rank = r.Rank
		}
	}
	if rank < 0 {
		return nil, fmt.Errorf("node %s is not part of the world", nodeID)
	}
	return NewHTTPComm(rank, peers, coord, box), nil
}

func (c *HTTPComm) Rank() int { return c.rank }
func (c *HTTPComm) Size() int { return len(c.peers) }

func (c *HTTPComm) Isend(ctx context.Context, dest, tag int, data []float64) Request {
	if dest < 0 || dest >= c.Size() {
		return failed(fmt.Errorf("%w: send to %d", ErrInvalidRank, dest))
	}
	msg := HaloMessage{From: c.rank, Tag: tag, Data: append([]float64(nil), data...)}
	url := c.peers[dest] + "/halo"
	return start(func() error {
		if err := PostJSON(ctx, url, msg, nil); err != nil {
			return fmt.Errorf("send to rank %d: %w", dest, err)
		}
		return nil
	})
}

func (c *HTTPComm) Irecv(ctx context.Context, src, tag int, buf []float64) Request {
	if src < 0 || src >= c.Size() {
		return failed(fmt.Errorf("%w: receive from %d", ErrInvalidRank, src))
	}
	return start(func() error {
		return c.box.Receive(ctx, src, tag, buf)
	})
}

func (c *HTTPComm) AllreduceMax(ctx context.Context, v float64) (float64, error) {
	return c.collective(ctx, OpMax, v)
}

func (c *HTTPComm) Barrier(ctx context.Context) error {
	_, err := c.collective(ctx, OpBarrier, 0)
	return err
}

func (c *HTTPComm) collective(ctx context.Context, op string, v float64) (float64, error) {
	req := CollectiveRequest{Rank: c.rank, Round: c.round, Op: op, Value: v}
	var resp CollectiveResponse
	if err := postJSON(ctx, collectiveClient, c.coord+"/collective", req, &resp); err != nil {
		return 0, fmt.Errorf("%s round %d: %w", op, c.round, err)
	}
	c.round++
	return resp.Value, nil
}

// Handler serves the rank endpoints:
//
//	POST /halo    queue a HaloMessage in box
//	GET  /health  liveness check for the coordinator's monitor
func Handler(box *Mailbox) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/halo", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var msg HaloMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := box.Deliver(r.Context(), msg.From, msg.Tag, msg.Data); err != nil {
			log.Printf("halo from rank %d dropped: %v", msg.From, err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
