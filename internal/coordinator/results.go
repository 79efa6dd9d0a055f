package coordinator

import (
	"sync"

	"github.com/dreamware/partdiff/internal/cluster"
)

// ResultStore keeps the report of the finished solve. The reporting rank
// posts it once; a later post replaces it.
type ResultStore struct {
	mu     sync.RWMutex
	report *cluster.ResultReport
	done   chan struct{}
}

func NewResultStore() *ResultStore {
	return &ResultStore{done: make(chan struct{})}
}

// Set stores rep and releases every Done waiter on the first call.
func (s *ResultStore) Set(rep cluster.ResultReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := s.report == nil
	s.report = &rep
	if first {
		close(s.done)
	}
}

// Get returns the stored report and whether one has been posted.
func (s *ResultStore) Get() (cluster.ResultReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.report == nil {
		return cluster.ResultReport{}, false
	}
	return *s.report, true
}

// Done is closed once the first report arrives.
func (s *ResultStore) Done() <-chan struct{} { return s.done }
