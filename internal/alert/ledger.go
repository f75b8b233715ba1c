package alert

import (
	"context"
	"sync"
	"time"

	"eventguard.org/internal/ids"
)

// DefaultRecentLimit bounds the historical read path.
const DefaultRecentLimit = 50

// Ledger is the durable append-only store of alert records. Append must
// complete before any fan-out of the record begins.
type Ledger interface {
	// Append persists the alert, assigning its id and creation timestamp.
	// The write is atomic: the record is fully persisted or not at all.
	Append(ctx context.Context, a *Alert) error

	// Recent returns up to limit records, most recent first. A limit <= 0
	// falls back to DefaultRecentLimit.
	Recent(ctx context.Context, limit int) ([]Alert, error)
}

// InMemory implements Ledger with in-process concurrency safety. Used by
// tests and for local development without a database.
type InMemory struct {
	mu      sync.RWMutex
	records []Alert
}

// NewInMemory creates an empty ledger.
func NewInMemory() *InMemory {
	return &InMemory{}
}

var _ Ledger = (*InMemory)(nil)

func (s *InMemory) Append(_ context.Context, a *Alert) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = ids.New()
	a.CreatedAt = time.Now().UTC()
	s.records = append(s.records, *a)
	return nil
}

func (s *InMemory) Recent(_ context.Context, limit int) ([]Alert, error) {
	if limit <= 0 || limit > 1000 {
		limit = DefaultRecentLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.records)
	if limit > n {
		limit = n
	}
	out := make([]Alert, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Len reports the number of persisted records. Test helper.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
