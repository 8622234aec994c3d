package detect

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"immigo/internal/checklist"
	"immigo/internal/impact"
	"immigo/internal/notify"
	"immigo/internal/platform/config"
	"immigo/internal/policy"
	policystore "immigo/internal/policy/store"
	id "immigo/pkg/domain"
	"immigo/pkg/platform/sentinel"
	"immigo/pkg/requestcontext"
)

// fakeSource serves canned fields per key and can be switched to fail.
type fakeSource struct {
	mu     sync.Mutex
	fields map[policy.Key]policy.Fields
	err    error
}

func (f *fakeSource) set(key policy.Key, fields policy.Fields) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fields == nil {
		f.fields = make(map[policy.Key]policy.Fields)
	}
	f.fields[key] = fields
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSource) Fetch(_ context.Context, key policy.Key) (policy.Fields, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	fields, ok := f.fields[key]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", key, sentinel.ErrUnavailable)
	}
	return fields.Clone(), nil
}

// captureNotifier records everything published and can be switched to fail.
type captureNotifier struct {
	mu        sync.Mutex
	published []notify.Notification
	err       error
}

func (c *captureNotifier) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *captureNotifier) Publish(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, n)
	return nil
}

func (c *captureNotifier) all() []notify.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.Notification(nil), c.published...)
}

type OrchestratorSuite struct {
	suite.Suite
	ctx        context.Context
	source     *fakeSource
	snapshots  *policystore.InMemoryStore
	ledger     *InMemoryLedger
	lease      *InMemoryLease
	checklists *checklist.InMemoryStore
	prefs      *notify.InMemoryPreferenceStore
	notifier   *captureNotifier
	orch       *Orchestrator
	key        policy.Key
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC))
	s.source = &fakeSource{}
	s.snapshots = policystore.NewInMemoryStore()
	s.ledger = NewInMemoryLedger()
	s.lease = NewInMemoryLease()
	s.checklists = checklist.NewInMemoryStore()
	s.prefs = notify.NewInMemoryPreferenceStore()
	s.notifier = &captureNotifier{}
	s.key = policy.Key{Country: "US", Type: id.PolicyWorkPermit}

	reconciler, err := checklist.NewReconciler(s.checklists, nil)
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.orch, err = NewOrchestrator(Deps{
		Source:     s.source,
		Snapshots:  s.snapshots,
		Ledger:     s.ledger,
		Lease:      s.lease,
		Checklists: s.checklists,
		Reconciler: reconciler,
		Prefs:      s.prefs,
		Notifier:   s.notifier,
	}, config.DetectConfig{LeaseTTL: time.Minute, MaxParallelKeys: 4}, logger)
	s.Require().NoError(err)
}

func (s *OrchestratorSuite) seedBaseline(fields policy.Fields) {
	_, created, err := s.snapshots.Append(s.ctx, s.key, fields)
	s.Require().NoError(err)
	s.Require().True(created)
}

func (s *OrchestratorSuite) seedChecklist(clID id.ChecklistID, userID id.UserID, items ...checklist.Item) {
	_, err := s.checklists.Create(s.ctx, checklist.Checklist{
		ID:          clID,
		UserID:      userID,
		Origin:      "BR",
		Destination: "US",
		Title:       "Relocation",
		Items:       items,
	})
	s.Require().NoError(err)
}

// The full pipeline: a processing time bump lands as refreshed checklist text
// for incomplete items, a review flag for completed ones, and a minor
// notification for subscribed users.
func (s *OrchestratorSuite) TestProcessingTimeChangePropagates() {
	s.seedBaseline(policy.Fields{policy.FieldProcessingTime: "30 days", policy.FieldCost: "$500"})
	completedAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	s.seedChecklist("cl-1", "user-1",
		checklist.Item{Category: id.CategoryDocumentation, TaskSlug: "submit-application", Title: "Submit application", Description: "allow 30 days"},
		checklist.Item{Category: id.CategoryDocumentation, TaskSlug: "book-biometrics", Title: "Book biometrics", Completed: true, CompletedAt: &completedAt},
	)

	s.source.set(s.key, policy.Fields{policy.FieldProcessingTime: "45 days", policy.FieldCost: "$500"})
	s.Require().NoError(s.orch.ProcessKey(s.ctx, s.key))

	latest, err := s.snapshots.Latest(s.ctx, s.key)
	s.Require().NoError(err)
	s.Equal(int64(2), latest.Version)

	cl, err := s.checklists.Get(s.ctx, "cl-1")
	s.Require().NoError(err)

	open := cl.Item(id.CategoryDocumentation, "submit-application")
	s.Require().NotNil(open)
	s.Contains(open.Description, "45 days")
	s.Equal(int64(2), open.SourcePolicyVersion)
	s.False(open.NeedsReview)

	done := cl.Item(id.CategoryDocumentation, "book-biometrics")
	s.Require().NotNil(done)
	s.True(done.Completed)
	s.True(done.NeedsReview)

	published := s.notifier.all()
	s.Require().Len(published, 1)
	s.Equal(id.UserID("user-1"), published[0].UserID)
	s.Equal(impact.SeverityMinor, published[0].Impact.Severity)

	seen, err := s.ledger.Seen(s.ctx, s.key, 1, 2)
	s.Require().NoError(err)
	s.True(seen)
}

// Re-running a fully processed transition must not patch or notify again.
func (s *OrchestratorSuite) TestProcessedTransitionIsNotRepeated() {
	s.seedBaseline(policy.Fields{policy.FieldCost: "$500"})
	s.seedChecklist("cl-1", "user-1",
		checklist.Item{Category: id.CategoryFinancial, TaskSlug: "budget", Title: "Budget"},
	)
	s.source.set(s.key, policy.Fields{policy.FieldCost: "$700"})

	s.Require().NoError(s.orch.ProcessKey(s.ctx, s.key))
	s.Require().NoError(s.orch.ProcessKey(s.ctx, s.key))

	s.Len(s.notifier.all(), 1)

	cl, err := s.checklists.Get(s.ctx, "cl-1")
	s.Require().NoError(err)
	s.Equal(int64(2), cl.Version, "second run must not save the checklist again")
}

// A trigger racing a running sweep collapses to a no-op instead of a double run.
func (s *OrchestratorSuite) TestHeldLeaseMeansNoOp() {
	s.seedBaseline(policy.Fields{policy.FieldCost: "$500"})
	s.source.set(s.key, policy.Fields{policy.FieldCost: "$700"})

	_, held, err := s.lease.Acquire(s.ctx, s.key, time.Minute)
	s.Require().NoError(err)
	s.Require().True(held)

	s.Require().NoError(s.orch.ProcessKey(s.ctx, s.key))

	latest, err := s.snapshots.Latest(s.ctx, s.key)
	s.Require().NoError(err)
	s.Equal(int64(1), latest.Version, "losing the lease must leave no side effects")
	s.Empty(s.notifier.all())
}

// A fetch failure leaves the ledger untouched so the next sweep retries.
func (s *OrchestratorSuite) TestFetchFailureDoesNotAdvanceLedger() {
	s.seedBaseline(policy.Fields{policy.FieldCost: "$500"})
	s.seedChecklist("cl-1", "user-1",
		checklist.Item{Category: id.CategoryFinancial, TaskSlug: "budget", Title: "Budget"},
	)

	s.source.fail(fmt.Errorf("aggregator down: %w", sentinel.ErrUnavailable))
	err := s.orch.ProcessKey(s.ctx, s.key)
	s.Require().ErrorIs(err, sentinel.ErrUnavailable)

	// Recovery: the change is picked up in full on the next run.
	s.source.fail(nil)
	s.source.set(s.key, policy.Fields{policy.FieldCost: "$700"})
	s.Require().NoError(s.orch.ProcessKey(s.ctx, s.key))

	seen, err := s.ledger.Seen(s.ctx, s.key, 1, 2)
	s.Require().NoError(err)
	s.True(seen)
	s.Len(s.notifier.all(), 1)
}

// A run that appended a version but failed to propagate is finished by the
// next run even though the next fetch is version-identical.
func (s *OrchestratorSuite) TestPropagationFailureIsRetriedOnIdenticalFetch() {
	s.seedBaseline(policy.Fields{policy.FieldCost: "$500"})
	s.seedChecklist("cl-1", "user-1",
		checklist.Item{Category: id.CategoryFinancial, TaskSlug: "budget", Title: "Budget"},
	)
	s.source.set(s.key, policy.Fields{policy.FieldCost: "$700"})

	s.notifier.fail(fmt.Errorf("broker down"))
	s.Require().Error(s.orch.ProcessKey(s.ctx, s.key))

	seen, err := s.ledger.Seen(s.ctx, s.key, 1, 2)
	s.Require().NoError(err)
	s.False(seen, "a failed propagation must not advance the ledger")

	s.notifier.fail(nil)
	s.Require().NoError(s.orch.ProcessKey(s.ctx, s.key))

	seen, err = s.ledger.Seen(s.ctx, s.key, 1, 2)
	s.Require().NoError(err)
	s.True(seen)
	s.Len(s.notifier.all(), 1)
}

// A failed attempt may save some checklists before aborting. The retry then
// computes empty patches for those, but their owners still get notified.
func (s *OrchestratorSuite) TestRetryStillNotifiesAlreadyPatchedChecklists() {
	s.seedBaseline(policy.Fields{policy.FieldProcessingTime: "30 days"})
	completedAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	s.seedChecklist("cl-done", "user-done",
		checklist.Item{Category: id.CategoryDocumentation, TaskSlug: "book-biometrics", Title: "Book biometrics", Completed: true, CompletedAt: &completedAt},
	)
	s.seedChecklist("cl-open", "user-open",
		checklist.Item{Category: id.CategoryDocumentation, TaskSlug: "submit-application", Title: "Submit application", Description: "allow 30 days"},
	)
	s.source.set(s.key, policy.Fields{policy.FieldProcessingTime: "45 days"})

	// First attempt patches both checklists, then dies publishing.
	s.notifier.fail(fmt.Errorf("broker down"))
	s.Require().Error(s.orch.ProcessKey(s.ctx, s.key))

	cl, err := s.checklists.Get(s.ctx, "cl-done")
	s.Require().NoError(err)
	s.True(cl.Item(id.CategoryDocumentation, "book-biometrics").NeedsReview)

	s.notifier.fail(nil)
	s.Require().NoError(s.orch.ProcessKey(s.ctx, s.key))

	users := make(map[id.UserID]bool)
	for _, n := range s.notifier.all() {
		users[n.UserID] = true
	}
	s.True(users["user-open"])
	s.True(users["user-done"], "owner of the already-flagged checklist must still be notified")

	seen, err := s.ledger.Seen(s.ctx, s.key, 1, 2)
	s.Require().NoError(err)
	s.True(seen)
}

// A checklist with no items in the impacted categories is neither patched nor
// a reason to notify its owner.
func (s *OrchestratorSuite) TestUnrelatedCategoriesStayQuiet() {
	s.seedBaseline(policy.Fields{policy.FieldProcessingTime: "30 days"})
	s.seedChecklist("cl-1", "user-1",
		checklist.Item{Category: id.CategoryHousing, TaskSlug: "find-apartment", Title: "Find apartment"},
	)
	s.source.set(s.key, policy.Fields{policy.FieldProcessingTime: "45 days"})

	s.Require().NoError(s.orch.ProcessKey(s.ctx, s.key))

	s.Empty(s.notifier.all())
	cl, err := s.checklists.Get(s.ctx, "cl-1")
	s.Require().NoError(err)
	s.Equal(int64(1), cl.Version)
}

// Identical re-fetches neither create versions nor wake anyone up.
func (s *OrchestratorSuite) TestUnchangedFetchIsQuiet() {
	s.seedBaseline(policy.Fields{policy.FieldCost: "$500"})
	s.source.set(s.key, policy.Fields{policy.FieldCost: "$500"})

	s.Require().NoError(s.orch.ProcessKey(s.ctx, s.key))

	latest, err := s.snapshots.Latest(s.ctx, s.key)
	s.Require().NoError(err)
	s.Equal(int64(1), latest.Version)
	s.Empty(s.notifier.all())
}

// The first observation of a key establishes a baseline without propagation.
func (s *OrchestratorSuite) TestFirstObservationIsBaseline() {
	s.seedChecklist("cl-1", "user-1",
		checklist.Item{Category: id.CategoryFinancial, TaskSlug: "budget", Title: "Budget"},
	)
	s.source.set(s.key, policy.Fields{policy.FieldCost: "$500"})

	s.Require().NoError(s.orch.ProcessKey(s.ctx, s.key))

	latest, err := s.snapshots.Latest(s.ctx, s.key)
	s.Require().NoError(err)
	s.Equal(int64(1), latest.Version)
	s.Empty(s.notifier.all())
}

// Preference gating filters users per severity and category.
func (s *OrchestratorSuite) TestNotificationsRespectPreferences() {
	s.seedBaseline(policy.Fields{policy.FieldCost: "$500"})
	s.seedChecklist("cl-1", "subscriber",
		checklist.Item{Category: id.CategoryFinancial, TaskSlug: "budget", Title: "Budget"},
	)
	s.seedChecklist("cl-2", "blocking-only",
		checklist.Item{Category: id.CategoryFinancial, TaskSlug: "budget", Title: "Budget"},
	)
	s.Require().NoError(s.prefs.Put(s.ctx, notify.Preference{
		UserID:      "blocking-only",
		MinSeverity: impact.SeverityBlocking,
	}))

	s.source.set(s.key, policy.Fields{policy.FieldCost: "$700"})
	s.Require().NoError(s.orch.ProcessKey(s.ctx, s.key))

	published := s.notifier.all()
	s.Require().Len(published, 1)
	s.Equal(id.UserID("subscriber"), published[0].UserID)

	// Both checklists were still patched; gating only filters delivery.
	for _, clID := range []id.ChecklistID{"cl-1", "cl-2"} {
		cl, err := s.checklists.Get(s.ctx, clID)
		s.Require().NoError(err)
		s.Contains(cl.Item(id.CategoryFinancial, "budget").Description, "$700")
	}
}

// Sweep processes every tracked key and isolates per-key failures.
func (s *OrchestratorSuite) TestSweepCoversAllKeys() {
	other := policy.Key{Country: "DE", Type: id.PolicyVisaRequirement}
	_, _, err := s.snapshots.Append(s.ctx, s.key, policy.Fields{policy.FieldCost: "$500"})
	s.Require().NoError(err)
	_, _, err = s.snapshots.Append(s.ctx, other, policy.Fields{policy.FieldStatus: "active"})
	s.Require().NoError(err)

	s.source.set(s.key, policy.Fields{policy.FieldCost: "$700"})
	s.source.set(other, policy.Fields{policy.FieldStatus: "suspended"})

	s.Require().NoError(s.orch.Sweep(s.ctx))

	for _, key := range []policy.Key{s.key, other} {
		latest, err := s.snapshots.Latest(s.ctx, key)
		s.Require().NoError(err)
		s.Equal(int64(2), latest.Version)
	}
}

func (s *OrchestratorSuite) TestSweepAggregatesFailures() {
	s.seedBaseline(policy.Fields{policy.FieldCost: "$500"})
	s.source.fail(fmt.Errorf("aggregator down: %w", sentinel.ErrUnavailable))

	err := s.orch.Sweep(s.ctx)
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrUnavailable)
}
