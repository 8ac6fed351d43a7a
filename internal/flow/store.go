package flow

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrSnapshotNotFound indicates that no snapshot is stored for a kiosk.
var ErrSnapshotNotFound = errors.New("flow snapshot not found")

// Store keeps display snapshots of kiosk flow state. Snapshots are observational only;
// a controller never restores a session from them.
type Store interface {
	// Save stores the latest snapshot for the kiosk.
	Save(ctx context.Context, kioskID string, state *FlowState) error
	// Load returns the stored snapshot or ErrSnapshotNotFound.
	Load(ctx context.Context, kioskID string) (*FlowState, error)
	// Clear removes the snapshot for the kiosk.
	Clear(ctx context.Context, kioskID string) error
	// LoadAll returns every stored snapshot.
	LoadAll(ctx context.Context) ([]*FlowState, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]FlowState
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]FlowState)}
}

func (s *MemoryStore) Save(_ context.Context, kioskID string, state *FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[kioskID] = *state
	return nil
}

func (s *MemoryStore) Load(_ context.Context, kioskID string) (*FlowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[kioskID]
	if !ok {
		return nil, ErrSnapshotNotFound
	}

	return &state, nil
}

func (s *MemoryStore) Clear(_ context.Context, kioskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, kioskID)
	return nil
}

func (s *MemoryStore) LoadAll(_ context.Context) ([]*FlowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*FlowState, 0, len(s.states))
	for _, state := range s.states {
		copied := state
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].KioskID < result[j].KioskID })
	return result, nil
}
