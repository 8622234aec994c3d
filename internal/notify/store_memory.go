package notify

import (
	"context"
	"fmt"
	"sync"

	id "immigo/pkg/domain"
)

// InMemoryPreferenceStore keeps preferences in memory.
type InMemoryPreferenceStore struct {
	mu    sync.RWMutex
	prefs map[id.UserID]Preference
}

func NewInMemoryPreferenceStore() *InMemoryPreferenceStore {
	return &InMemoryPreferenceStore{prefs: make(map[id.UserID]Preference)}
}

func (s *InMemoryPreferenceStore) Get(_ context.Context, userID id.UserID) (Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pref, ok := s.prefs[userID]; ok {
		out := pref
		out.Categories = append([]id.Category(nil), pref.Categories...)
		return out, nil
	}
	return DefaultPreference(userID), nil
}

func (s *InMemoryPreferenceStore) Put(_ context.Context, pref Preference) error {
	if pref.UserID.IsNil() {
		return fmt.Errorf("put preference: user id is required")
	}
	if !pref.MinSeverity.IsValid() {
		return fmt.Errorf("put preference: unknown severity %q", pref.MinSeverity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	pref.Categories = append([]id.Category(nil), pref.Categories...)
	s.prefs[pref.UserID] = pref
	return nil
}
