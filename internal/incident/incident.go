package incident

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"eventguard.org/internal/ids"
)

var (
	ErrNotFound     = errors.New("incident: not found")
	ErrInvalidInput = errors.New("incident: type and location are required")
)

// Incident is one logged incident report.
type Incident struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Location     string    `json:"location"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	VisionLabels []string  `json:"visionLabels"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Validate enforces the required incident fields.
func (i *Incident) Validate() error {
	if strings.TrimSpace(i.Type) == "" || strings.TrimSpace(i.Location) == "" {
		return ErrInvalidInput
	}
	return nil
}

// Store is the durable CRUD store for incident reports.
type Store interface {
	Create(ctx context.Context, inc *Incident) error
	Find(ctx context.Context, id string) (*Incident, error)
	List(ctx context.Context) ([]*Incident, error)
	Delete(ctx context.Context, id string) error
}

// InMemory implements Store for tests and database-less development.
type InMemory struct {
	mu        sync.RWMutex
	incidents map[string]*Incident
}

// NewInMemory creates an empty incident store.
func NewInMemory() *InMemory {
	return &InMemory{incidents: make(map[string]*Incident)}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) Create(_ context.Context, inc *Incident) error {
	if err := inc.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inc.ID = ids.New()
	inc.CreatedAt = time.Now().UTC()
	if inc.VisionLabels == nil {
		inc.VisionLabels = []string{}
	}
	cp := *inc
	s.incidents[inc.ID] = &cp
	return nil
}

func (s *InMemory) Find(_ context.Context, id string) (*Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inc
	return &cp, nil
}

func (s *InMemory) List(_ context.Context) ([]*Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		cp := *inc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[id]; !ok {
		return ErrNotFound
	}
	delete(s.incidents, id)
	return nil
}
