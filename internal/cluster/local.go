package cluster

import (
	"context"
	"fmt"
)

// LocalWorld is a process group whose ranks are goroutines of one process.
// Ranks share nothing but their mailboxes and the collective; rows are copied
// on send exactly as they would be across a network.
type LocalWorld struct {
	boxes      []*Mailbox
	collective *Collective
}

// NewLocalWorld creates a group of size ranks.
func NewLocalWorld(size int) *LocalWorld {
	w := &LocalWorld{
		boxes:      make([]*Mailbox, size),
		collective: NewCollective(size),
	}
	for i := range w.boxes {
		w.boxes[i] = NewMailbox()
	}
	return w
}

// Comm returns the communicator of rank. Each rank's communicator must be
// used by one goroutine at a time.
func (w *LocalWorld) Comm(rank int) Communicator {
	return &localComm{world: w, rank: rank}
}

// Abort fails every pending and future collective of the world with cause.
// A rank that stops early calls it so the others do not wait for it.
func (w *LocalWorld) Abort(cause error) { w.collective.Abort(cause) }

// Size is the number of ranks.
func (w *LocalWorld) Size() int { return len(w.boxes) }

type localComm struct {
	world *LocalWorld
	rank  int
	round uint64
}

func (c *localComm) Rank() int { return c.rank }
func (c *localComm) Size() int { return len(c.world.boxes) }

func (c *localComm) Isend(ctx context.Context, dest, tag int, data []float64) Request {
	if dest < 0 || dest >= c.Size() {
		return failed(fmt.Errorf("%w: send to %d", ErrInvalidRank, dest))
	}
	msg := append([]float64(nil), data...)
	box := c.world.boxes[dest]
	return start(func() error {
		return box.Deliver(ctx, c.rank, tag, msg)
	})
}

func (c *localComm) Irecv(ctx context.Context, src, tag int, buf []float64) Request {
	if src < 0 || src >= c.Size() {
		return failed(fmt.Errorf("%w: receive from %d", ErrInvalidRank, src))
	}
	box := c.world.boxes[c.rank]
	return start(func() error {
		return box.Receive(ctx, src, tag, buf)
	})
}

func (c *localComm) AllreduceMax(ctx context.Context, v float64) (float64, error) {
	res, err := c.world.collective.Reduce(ctx, c.round, v)
	if err != nil {
		return 0, err
	}
	c.round++
	return res, nil
}

func (c *localComm) Barrier(ctx context.Context) error {
	_, err := c.AllreduceMax(ctx, 0)
	return err
}
