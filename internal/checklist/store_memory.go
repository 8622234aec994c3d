package checklist

import (
	"context"
	"fmt"
	"sort"
	"sync"

	id "immigo/pkg/domain"
	"immigo/pkg/platform/sentinel"
)

// InMemoryStore keeps checklists in memory with the same optimistic
// versioning contract the Postgres store enforces.
type InMemoryStore struct {
	mu         sync.RWMutex
	checklists map[id.ChecklistID]Checklist
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{checklists: make(map[id.ChecklistID]Checklist)}
}

func (s *InMemoryStore) Create(_ context.Context, cl Checklist) (Checklist, error) {
	if cl.ID.IsNil() {
		return Checklist{}, fmt.Errorf("create checklist: id is required")
	}
	if cl.UserID.IsNil() {
		return Checklist{}, fmt.Errorf("create checklist: user id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.checklists[cl.ID]; exists {
		return Checklist{}, fmt.Errorf("create checklist %s: %w", cl.ID, sentinel.ErrConflict)
	}
	cl = cl.Clone()
	cl.Version = 1
	cl.RecountProgress()
	s.checklists[cl.ID] = cl
	return cl.Clone(), nil
}

func (s *InMemoryStore) Get(_ context.Context, clID id.ChecklistID) (Checklist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cl, ok := s.checklists[clID]
	if !ok {
		return Checklist{}, fmt.Errorf("checklist %s: %w", clID, sentinel.ErrNotFound)
	}
	return cl.Clone(), nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]Checklist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Checklist
	for _, cl := range s.checklists {
		if cl.UserID == userID {
			out = append(out, cl.Clone())
		}
	}
	sortByID(out)
	return out, nil
}

func (s *InMemoryStore) ListByCountry(_ context.Context, country id.CountryID) ([]Checklist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Checklist
	for _, cl := range s.checklists {
		if cl.Origin == country || cl.Destination == country {
			out = append(out, cl.Clone())
		}
	}
	sortByID(out)
	return out, nil
}

func (s *InMemoryStore) Save(_ context.Context, cl Checklist, expectedVersion int64) (Checklist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.checklists[cl.ID]
	if !ok {
		return Checklist{}, fmt.Errorf("checklist %s: %w", cl.ID, sentinel.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return Checklist{}, fmt.Errorf("checklist %s at version %d, writer expected %d: %w",
			cl.ID, current.Version, expectedVersion, sentinel.ErrConflict)
	}
	cl = cl.Clone()
	cl.Version = expectedVersion + 1
	s.checklists[cl.ID] = cl
	return cl.Clone(), nil
}

func sortByID(checklists []Checklist) {
	sort.Slice(checklists, func(i, j int) bool { return checklists[i].ID < checklists[j].ID })
}
