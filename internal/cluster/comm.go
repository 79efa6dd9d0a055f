// Package cluster provides message passing between the ranks of a solve.
// See doc.go for complete package documentation.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrLengthMismatch is returned when a received message does not fit the
	// receive buffer exactly.
	ErrLengthMismatch = errors.New("message length does not match receive buffer")

	// ErrRoundMismatch is returned when a rank joins a collective round other
	// than the one in progress.
	ErrRoundMismatch = errors.New("collective round mismatch")

	// ErrInvalidRank is returned for a peer index outside [0, size).
	ErrInvalidRank = errors.New("invalid rank")

	// ErrAborted is returned by every collective of a group that lost a
	// participant.
	ErrAborted = errors.New("collective aborted")
)

// Communicator is one rank's endpoint into its process group.
//
// Point-to-point operations are non-blocking: Isend and Irecv return at once
// with a Request, and the caller waits on all its requests at a single join
// point. Data passed to Isend is copied before Isend returns; the buffer passed
// to Irecv is written before that request's Wait returns and not after.
//
// AllreduceMax and Barrier are collective: every rank of the group must call
// them, in the same order, or the group deadlocks.
type Communicator interface {
	Rank() int
	Size() int
	Isend(ctx context.Context, dest, tag int, data []float64) Request
	Irecv(ctx context.Context, src, tag int, buf []float64) Request
	AllreduceMax(ctx context.Context, v float64) (float64, error)
	Barrier(ctx context.Context) error
}

// Request is the completion handle of a non-blocking operation.
type Request interface {
	Wait() error
}

// Send is a blocking Isend.
func Send(ctx context.Context, c Communicator, dest, tag int, data []float64) error {
	return c.Isend(ctx, dest, tag, data).Wait()
}

// Recv is a blocking Irecv.
func Recv(ctx context.Context, c Communicator, src, tag int, buf []float64) error {
	return c.Irecv(ctx, src, tag, buf).Wait()
}

// WaitAll waits on every request and returns the first error.
func WaitAll(reqs ...Request) error {
	var first error
	for _, r := range reqs {
		if err := r.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// request is a Request completed by a background goroutine.
type request struct {
	done chan struct{}
	err  error
}

func start(fn func() error) *request {
	r := &request{done: make(chan struct{})}
	go func() {
		r.err = fn()
		close(r.done)
	}()
	return r
}

func failed(err error) *request {
	r := &request{done: make(chan struct{}), err: err}
	close(r.done)
	return r
}

func (r *request) Wait() error {
	<-r.done
	return r.err
}

type mailKey struct {
	from, tag int
}

// Mailbox queues incoming messages per (source rank, tag). Messages from one
// source with one tag are received in the order they were delivered.
type Mailbox struct {
	mu     sync.Mutex
	queues map[mailKey]chan []float64
}

// mailboxDepth bounds the messages queued per (source, tag). The solver never
// has more than one in flight per key between two collectives.
const mailboxDepth = 64

func NewMailbox() *Mailbox {
	return &Mailbox{queues: make(map[mailKey]chan []float64)}
}

func (m *Mailbox) queue(from, tag int) chan []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := mailKey{from, tag}
	q, ok := m.queues[k]
	if !ok {
		q = make(chan []float64, mailboxDepth)
		m.queues[k] = q
	}
	return q
}

// Deliver enqueues data. The mailbox takes ownership of the slice.
func (m *Mailbox) Deliver(ctx context.Context, from, tag int, data []float64) error {
	select {
	case m.queue(from, tag) <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive dequeues the next message from (from, tag) into buf.
func (m *Mailbox) Receive(ctx context.Context, from, tag int, buf []float64) error {
	select {
	case data := <-m.queue(from, tag):
		if len(data) != len(buf) {
			return fmt.Errorf("%w: from rank %d tag %d: got %d values, want %d",
				ErrLengthMismatch, from, tag, len(data), len(buf))
		}
		copy(buf, data)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Collective computes an all-reduce maximum over a fixed number of
// participants. Each round completes when all participants have joined it;
// every participant then observes the same value.
//
// A participant that gives up while joined, or that arrives with a done
// context, aborts the collective: a round cannot complete without it, so the
// waiting participants fail with ErrAborted instead of blocking, and so does
// every later round.
type Collective struct {
	mu      sync.Mutex
	size    int
	round   uint64
	arrived int
	acc     float64
	cur     *roundState
	err     error // set once by abort
}

// roundState is closed when its round completes or the collective aborts.
type roundState struct {
	done   chan struct{}
	result float64
	err    error
}

func newRoundState() *roundState { return &roundState{done: make(chan struct{})} }

func NewCollective(size int) *Collective {
	return &Collective{size: size, cur: newRoundState()}
}

// Reduce joins round with value v and blocks until the round completes,
// ctx is done or the collective is aborted. It returns the maximum over all
// participants' values.
func (c *Collective) Reduce(ctx context.Context, round uint64, v float64) (float64, error) {
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return 0, err
	}
	if round != c.round {
		current := c.round
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: joined %d, current %d", ErrRoundMismatch, round, current)
	}
	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		return 0, c.Abort(err)
	}

	if c.arrived == 0 || v > c.acc {
		c.acc = v
	}
	c.arrived++
	st := c.cur

	if c.arrived == c.size {
		st.result = c.acc
		c.arrived = 0
		c.round++
		c.cur = newRoundState()
		close(st.done)
		c.mu.Unlock()
		return st.result, nil
	}
	c.mu.Unlock()

	select {
	case <-st.done:
		return st.result, st.err
	case <-ctx.Done():
		select {
		case <-st.done:
			return st.result, st.err
		default:
		}
		return 0, c.Abort(ctx.Err())
	}
}

// Abort fails the round in progress and every later round with cause, and
// returns the error the participants observe. Only the first cause is kept.
func (c *Collective) Abort(cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = fmt.Errorf("%w: %w", ErrAborted, cause)
		c.cur.err = c.err
		close(c.cur.done)
	}
	return c.err
}

// Round returns the round currently accepting participants.
func (c *Collective) Round() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}
