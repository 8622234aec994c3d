package checklist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"immigo/internal/impact"
	"immigo/internal/policy"
	id "immigo/pkg/domain"
	dErrors "immigo/pkg/domainerrors"
	"immigo/pkg/requestcontext"
)

// conflictingStore wraps the in-memory store and fails the first N saves with
// a version conflict, simulating user edits racing the reconciler.
type conflictingStore struct {
	*InMemoryStore
	conflicts int
}

func (s *conflictingStore) Save(ctx context.Context, cl Checklist, expectedVersion int64) (Checklist, error) {
	if s.conflicts > 0 {
		s.conflicts--
		// Bump the stored version behind the caller's back.
		current, err := s.InMemoryStore.Get(ctx, cl.ID)
		if err != nil {
			return Checklist{}, err
		}
		if _, err := s.InMemoryStore.Save(ctx, current, current.Version); err != nil {
			return Checklist{}, err
		}
		return s.InMemoryStore.Save(ctx, cl, expectedVersion)
	}
	return s.InMemoryStore.Save(ctx, cl, expectedVersion)
}

type ReconcilerSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryStore
	rec   *Reconciler
	key   policy.Key
	now   time.Time
}

func TestReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerSuite))
}

func (s *ReconcilerSuite) SetupTest() {
	s.now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = NewInMemoryStore()
	rec, err := NewReconciler(s.store, nil)
	s.Require().NoError(err)
	s.rec = rec
	s.key = policy.Key{Country: "US", Type: id.PolicyWorkPermit}
}

func (s *ReconcilerSuite) seedChecklist(items ...Item) Checklist {
	cl, err := s.store.Create(s.ctx, Checklist{
		ID:          "cl-1",
		UserID:      "user-1",
		Origin:      "BR",
		Destination: "US",
		Title:       "Move to the US",
		Items:       items,
	})
	s.Require().NoError(err)
	return cl
}

func (s *ReconcilerSuite) impactFor(field string, old, new string) impact.Result {
	delta := policy.Delta{
		Key:         s.key,
		FromVersion: 1,
		ToVersion:   2,
		Changes:     []policy.FieldChange{{Field: field, Old: &old, New: &new}},
	}
	return impact.Classify(delta)
}

func (s *ReconcilerSuite) TestIncompleteItemGetsRefreshedText() {
	s.seedChecklist(Item{
		Category:            id.CategoryDocumentation,
		TaskSlug:            "gather-documents",
		Title:               "Gather documents",
		Description:         "old text",
		SourcePolicyVersion: 1,
	})

	imp := s.impactFor(policy.FieldProcessingTime, "30 days", "45 days")
	patch, err := s.rec.Apply(s.ctx, "cl-1", imp)
	s.Require().NoError(err)
	s.Require().Len(patch.ItemPatches, 1)

	cl, err := s.store.Get(s.ctx, "cl-1")
	s.Require().NoError(err)
	item := cl.Item(id.CategoryDocumentation, "gather-documents")
	s.Require().NotNil(item)
	s.NotEqual("old text", item.Description)
	s.Contains(item.Description, "45 days")
	s.Equal(int64(2), item.SourcePolicyVersion)
	s.False(item.Completed)
	s.False(item.NeedsReview)
	s.Equal(s.now, cl.UpdatedAt)
}

func (s *ReconcilerSuite) TestCompletedItemOnlyGetsNeedsReview() {
	completedAt := s.now.Add(-24 * time.Hour)
	s.seedChecklist(Item{
		Category:            id.CategoryLegal,
		TaskSlug:            "confirm-eligibility",
		Title:               "Confirm eligibility",
		Description:         "done long ago",
		Completed:           true,
		CompletedAt:         &completedAt,
		SourcePolicyVersion: 1,
	})

	imp := s.impactFor(policy.FieldEligibility, "degree required", "degree plus sponsor")
	_, err := s.rec.Apply(s.ctx, "cl-1", imp)
	s.Require().NoError(err)

	cl, err := s.store.Get(s.ctx, "cl-1")
	s.Require().NoError(err)
	item := cl.Item(id.CategoryLegal, "confirm-eligibility")
	s.Require().NotNil(item)
	s.True(item.Completed, "completion is never revoked by reconciliation")
	s.Equal(&completedAt, item.CompletedAt)
	s.True(item.NeedsReview)
	s.Equal("done long ago", item.Description, "completed items keep their text")
	s.Equal(int64(1), item.SourcePolicyVersion)
}

func (s *ReconcilerSuite) TestNeedsReviewNotReFlagged() {
	s.seedChecklist(Item{
		Category:    id.CategoryLegal,
		TaskSlug:    "confirm-eligibility",
		Title:       "Confirm eligibility",
		Completed:   true,
		NeedsReview: true,
	})

	imp := s.impactFor(policy.FieldEligibility, "a", "b")
	patch, err := s.rec.Apply(s.ctx, "cl-1", imp)
	s.Require().NoError(err)
	s.True(patch.Empty(), "already-flagged items produce no further patches")
}

func (s *ReconcilerSuite) TestUnaffectedCategoriesUntouched() {
	s.seedChecklist(
		Item{Category: id.CategoryHousing, TaskSlug: "find-apartment", Title: "Find apartment", Description: "keep"},
		Item{Category: id.CategoryFinancial, TaskSlug: "budget", Title: "Budget", Description: "old"},
	)

	imp := s.impactFor(policy.FieldCost, "$500", "$700")
	_, err := s.rec.Apply(s.ctx, "cl-1", imp)
	s.Require().NoError(err)

	cl, err := s.store.Get(s.ctx, "cl-1")
	s.Require().NoError(err)
	s.Equal("keep", cl.Item(id.CategoryHousing, "find-apartment").Description)
	s.NotEqual("old", cl.Item(id.CategoryFinancial, "budget").Description)
}

func (s *ReconcilerSuite) TestRegenerateAppendsNewItem() {
	s.seedChecklist()

	imp := s.impactFor(policy.FieldRequiredDocuments, "passport", "passport, police certificate")
	patch, err := s.rec.Apply(s.ctx, "cl-1", imp)
	s.Require().NoError(err)
	s.Require().Len(patch.NewItems, 1)

	cl, err := s.store.Get(s.ctx, "cl-1")
	s.Require().NoError(err)
	slug := GeneratedSlug(s.key, policy.FieldRequiredDocuments)
	item := cl.Item(id.CategoryDocumentation, slug)
	s.Require().NotNil(item)
	s.Equal(int64(2), item.SourcePolicyVersion)
	s.False(item.Completed)
	s.Equal(0, cl.CompletedCount)
	s.Equal(1, cl.TotalCount)
}

func (s *ReconcilerSuite) TestRegenerateIsIdempotentPerSlug() {
	s.seedChecklist()

	imp := s.impactFor(policy.FieldRequiredDocuments, "passport", "passport, police certificate")
	_, err := s.rec.Apply(s.ctx, "cl-1", imp)
	s.Require().NoError(err)

	// Re-running the same impact finds the generated item and adds nothing.
	patch, err := s.rec.Apply(s.ctx, "cl-1", imp)
	s.Require().NoError(err)
	s.Empty(patch.NewItems)

	cl, err := s.store.Get(s.ctx, "cl-1")
	s.Require().NoError(err)
	s.Equal(1, cl.TotalCount)
}

func (s *ReconcilerSuite) TestRemovedRequirementMarksItemObsolete() {
	slug := GeneratedSlug(s.key, policy.FieldRequiredDocuments)
	s.seedChecklist(Item{
		Category:            id.CategoryDocumentation,
		TaskSlug:            slug,
		Title:               "Updated required documents",
		SourcePolicyVersion: 1,
	})

	old := "police certificate"
	delta := policy.Delta{
		Key:         s.key,
		FromVersion: 1,
		ToVersion:   2,
		Changes:     []policy.FieldChange{{Field: policy.FieldRequiredDocuments, Old: &old, New: nil}},
	}
	_, err := s.rec.Apply(s.ctx, "cl-1", impact.Classify(delta))
	s.Require().NoError(err)

	cl, err := s.store.Get(s.ctx, "cl-1")
	s.Require().NoError(err)
	item := cl.Item(id.CategoryDocumentation, slug)
	s.Require().NotNil(item, "obsolete items are kept, not deleted")
	s.True(item.Obsolete)
	s.Equal(0, cl.TotalCount, "obsolete items leave the progress counters")
}

func (s *ReconcilerSuite) TestCountersRecomputedAfterPatch() {
	completedAt := s.now.Add(-time.Hour)
	s.seedChecklist(
		Item{Category: id.CategoryDocumentation, TaskSlug: "a", Title: "A", Completed: true, CompletedAt: &completedAt},
		Item{Category: id.CategoryDocumentation, TaskSlug: "b", Title: "B"},
	)

	imp := s.impactFor(policy.FieldRequiredDocuments, "passport", "passport, photos")
	_, err := s.rec.Apply(s.ctx, "cl-1", imp)
	s.Require().NoError(err)

	cl, err := s.store.Get(s.ctx, "cl-1")
	s.Require().NoError(err)
	s.Equal(1, cl.CompletedCount)
	s.Equal(3, cl.TotalCount)
}

func (s *ReconcilerSuite) TestConflictRetriesThenSucceeds() {
	store := &conflictingStore{InMemoryStore: s.store, conflicts: 2}
	rec, err := NewReconciler(store, nil, WithMaxAttempts(3))
	s.Require().NoError(err)
	s.seedChecklist(Item{Category: id.CategoryFinancial, TaskSlug: "budget", Title: "Budget"})

	imp := s.impactFor(policy.FieldCost, "$500", "$700")
	_, err = rec.Apply(s.ctx, "cl-1", imp)
	s.Require().NoError(err)

	cl, err := s.store.Get(s.ctx, "cl-1")
	s.Require().NoError(err)
	s.Contains(cl.Item(id.CategoryFinancial, "budget").Description, "$700")
}

func (s *ReconcilerSuite) TestConflictBudgetExhaustedSurfacesConflict() {
	store := &conflictingStore{InMemoryStore: s.store, conflicts: 10}
	rec, err := NewReconciler(store, nil, WithMaxAttempts(2))
	s.Require().NoError(err)
	s.seedChecklist(Item{Category: id.CategoryFinancial, TaskSlug: "budget", Title: "Budget"})

	imp := s.impactFor(policy.FieldCost, "$500", "$700")
	_, err = rec.Apply(s.ctx, "cl-1", imp)
	s.Require().Error(err)
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
}

func (s *ReconcilerSuite) TestEmptyImpactLeavesChecklistAlone() {
	s.seedChecklist(Item{Category: id.CategoryLegal, TaskSlug: "visa", Title: "Visa"})

	imp := impact.Classify(policy.Delta{Key: s.key, FromVersion: 1, ToVersion: 2})
	patch, err := s.rec.Apply(s.ctx, "cl-1", imp)
	s.Require().NoError(err)
	s.True(patch.Empty())

	cl, err := s.store.Get(s.ctx, "cl-1")
	s.Require().NoError(err)
	s.Equal(int64(1), cl.Version, "no save happens for an empty patch")
}

func TestGeneratedSlug(t *testing.T) {
	key := policy.Key{Country: "US", Type: id.PolicyWorkPermit}
	tests := []struct {
		field string
		want  string
	}{
		{policy.FieldRequiredDocuments, "us-work_permit-required-documents"},
		{policy.FieldProcessingTime, "us-work_permit-processing-time"},
		{"status", "us-work_permit-status"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			if got := GeneratedSlug(key, tt.field); got != tt.want {
				t.Errorf("GeneratedSlug(%q) = %q, want %q", tt.field, got, tt.want)
			}
		})
	}
}

func TestApplyPatchSkipsUnknownItems(t *testing.T) {
	cl := Checklist{ID: "cl-x", Items: []Item{{Category: id.CategoryLegal, TaskSlug: "visa", Title: "Visa"}}}
	desc := "new"
	patch := Patch{
		ChecklistID: "cl-x",
		ItemPatches: []ItemPatch{{Category: id.CategoryLegal, TaskSlug: "missing", Description: &desc}},
	}
	out := ApplyPatch(cl, patch, time.Now())
	if got := out.Items[0].Description; got != "" {
		t.Errorf("unexpected description %q", got)
	}
}
