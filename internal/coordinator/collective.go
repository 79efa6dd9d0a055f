package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreamware/partdiff/internal/cluster"
)

// ErrUnknownOp is returned for a collective operation the service does not
// implement.
var ErrUnknownOp = errors.New("unknown collective operation")

// CollectiveService answers the /collective requests of every rank.
//
// Collectives are numbered by round. Each rank counts its own collectives, so
// the k-th AllreduceMax or Barrier of every rank is round k. A round completes
// when all ranks have joined it; each rank then receives the maximum of the
// values contributed. A barrier is a round whose value is ignored.
type CollectiveService struct {
	size int
	coll *cluster.Collective
}

func NewCollectiveService(size int) *CollectiveService {
	return &CollectiveService{size: size, coll: cluster.NewCollective(size)}
}

// Join blocks until req's round completes and returns its result. A request
// for a rank outside the world, an unknown operation or a round other than the
// current one fails without joining.
//
// If ctx ends while the rank waits (its connection dropped), the round can
// no longer complete and the service aborts: the waiting ranks and every
// later request fail with cluster.ErrAborted.
func (s *CollectiveService) Join(ctx context.Context, req cluster.CollectiveRequest) (cluster.CollectiveResponse, error) {
	if req.Rank < 0 || req.Rank >= s.size {
		return cluster.CollectiveResponse{}, fmt.Errorf("%w: %d of %d", cluster.ErrInvalidRank, req.Rank, s.size)
	}
	switch req.Op {
	case cluster.OpMax:
	case cluster.OpBarrier:
		req.Value = 0
	default:
		return cluster.CollectiveResponse{}, fmt.Errorf("%w: %q", ErrUnknownOp, req.Op)
	}

	v, err := s.coll.Reduce(ctx, req.Round, req.Value)
	if err != nil {
		return cluster.CollectiveResponse{}, fmt.Errorf("rank %d: %w", req.Rank, err)
	}
	return cluster.CollectiveResponse{Round: req.Round, Value: v}, nil
}

// Abort fails the pending round and every later one with cause.
func (s *CollectiveService) Abort(cause error) error { return s.coll.Abort(cause) }

// Round returns the round currently accepting ranks.
func (s *CollectiveService) Round() uint64 { return s.coll.Round() }
