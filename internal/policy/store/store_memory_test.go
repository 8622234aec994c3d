package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"immigo/internal/policy"
	id "immigo/pkg/domain"
	"immigo/pkg/platform/sentinel"
	"immigo/pkg/requestcontext"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	key   policy.Key
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s.key = policy.Key{Country: "US", Type: id.PolicyWorkPermit}
}

func (s *InMemoryStoreSuite) TestAppendStartsAtVersionOne() {
	snap, created, err := s.store.Append(s.ctx, s.key, policy.Fields{"cost": "$500"})
	s.Require().NoError(err)
	s.True(created)
	s.Equal(int64(1), snap.Version)
	s.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), snap.CapturedAt)
}

func (s *InMemoryStoreSuite) TestAppendIdenticalFieldsIsNoOp() {
	first, created, err := s.store.Append(s.ctx, s.key, policy.Fields{"cost": "$500"})
	s.Require().NoError(err)
	s.True(created)

	again, created, err := s.store.Append(s.ctx, s.key, policy.Fields{"cost": "$500"})
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.Version, again.Version)

	latest, err := s.store.Latest(s.ctx, s.key)
	s.Require().NoError(err)
	s.Equal(int64(1), latest.Version)
}

func (s *InMemoryStoreSuite) TestAppendChangedFieldsBumpsVersion() {
	_, _, err := s.store.Append(s.ctx, s.key, policy.Fields{"processingTime": "30 days"})
	s.Require().NoError(err)

	snap, created, err := s.store.Append(s.ctx, s.key, policy.Fields{"processingTime": "45 days"})
	s.Require().NoError(err)
	s.True(created)
	s.Equal(int64(2), snap.Version)
}

func (s *InMemoryStoreSuite) TestStoredSnapshotUnaffectedByCallerMutation() {
	fields := policy.Fields{"cost": "$500"}
	_, _, err := s.store.Append(s.ctx, s.key, fields)
	s.Require().NoError(err)

	fields["cost"] = "$999"

	latest, err := s.store.Latest(s.ctx, s.key)
	s.Require().NoError(err)
	s.Equal("$500", latest.Fields["cost"])
}

func (s *InMemoryStoreSuite) TestLatestUnknownKey() {
	_, err := s.store.Latest(s.ctx, policy.Key{Country: "JP", Type: id.PolicyCitizenship})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestAtExactVersion() {
	_, _, err := s.store.Append(s.ctx, s.key, policy.Fields{"cost": "$500"})
	s.Require().NoError(err)
	_, _, err = s.store.Append(s.ctx, s.key, policy.Fields{"cost": "$600"})
	s.Require().NoError(err)

	snap, err := s.store.At(s.ctx, s.key, 1)
	s.Require().NoError(err)
	s.Equal("$500", snap.Fields["cost"])

	_, err = s.store.At(s.ctx, s.key, 3)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestKeysSorted() {
	us := policy.Key{Country: "US", Type: id.PolicyWorkPermit}
	de := policy.Key{Country: "DE", Type: id.PolicyVisaRequirement}
	_, _, err := s.store.Append(s.ctx, us, policy.Fields{"cost": "$500"})
	s.Require().NoError(err)
	_, _, err = s.store.Append(s.ctx, de, policy.Fields{"cost": "€80"})
	s.Require().NoError(err)

	keys, err := s.store.Keys(s.ctx)
	s.Require().NoError(err)
	s.Equal([]policy.Key{de, us}, keys)
}

func (s *InMemoryStoreSuite) TestConcurrentAppendsKeepVersionsMonotonic() {
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.store.Append(s.ctx, s.key, policy.Fields{"cost": string(rune('a' + i))})
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	latest, err := s.store.Latest(s.ctx, s.key)
	s.Require().NoError(err)

	seen := make(map[int64]bool)
	for v := int64(1); v <= latest.Version; v++ {
		snap, err := s.store.At(s.ctx, s.key, v)
		s.Require().NoError(err)
		s.False(seen[snap.Version])
		seen[snap.Version] = true
	}
}
