package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"immigo/internal/checklist"
	"immigo/internal/impact"
	"immigo/internal/notify"
	"immigo/internal/platform/config"
	"immigo/internal/policy"
	"immigo/internal/policy/store"
	id "immigo/pkg/domain"
	"immigo/pkg/platform/sentinel"
	"immigo/pkg/requestcontext"
)

// Pipeline phases, used for logging and error context. A key's run moves
// through them strictly in order; any failure aborts the run before the
// ledger is marked, so the next sweep retries the whole transition.
type phase string

const (
	phaseIdle        phase = "idle"
	phaseFetching    phase = "fetching"
	phaseDiffing     phase = "diffing"
	phaseClassifying phase = "classifying"
	phasePropagating phase = "propagating"
)

// Per-key run outcomes reported to metrics.
const (
	outcomeChanged   = "changed"
	outcomeUnchanged = "unchanged"
	outcomeBaseline  = "baseline"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

// Deps are the orchestrator's collaborators. All are required except Metrics.
type Deps struct {
	Source     policy.Source
	Snapshots  store.SnapshotStore
	Ledger     Ledger
	Lease      Lease
	Checklists checklist.Store
	Reconciler *checklist.Reconciler
	Prefs      notify.PreferenceStore
	Notifier   notify.Notifier
	Metrics    *Metrics
}

// Orchestrator drives the change detection pipeline: fetch the upstream
// policy, append a snapshot, diff against the previous version, classify the
// impact, and propagate patches and notifications. Runs for the same key are
// serialized by a lease and deduplicated by the processed-transitions ledger.
type Orchestrator struct {
	deps   Deps
	cfg    config.DetectConfig
	logger *slog.Logger
}

func NewOrchestrator(deps Deps, cfg config.DetectConfig, logger *slog.Logger) (*Orchestrator, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("orchestrator: policy source is required")
	case deps.Snapshots == nil:
		return nil, errors.New("orchestrator: snapshot store is required")
	case deps.Ledger == nil:
		return nil, errors.New("orchestrator: ledger is required")
	case deps.Lease == nil:
		return nil, errors.New("orchestrator: lease is required")
	case deps.Checklists == nil:
		return nil, errors.New("orchestrator: checklist store is required")
	case deps.Reconciler == nil:
		return nil, errors.New("orchestrator: reconciler is required")
	case deps.Prefs == nil:
		return nil, errors.New("orchestrator: preference store is required")
	case deps.Notifier == nil:
		return nil, errors.New("orchestrator: notifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxParallelKeys <= 0 {
		cfg.MaxParallelKeys = 1
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger}, nil
}

// Sweep runs the pipeline once for every tracked key. Keys are processed
// concurrently up to MaxParallelKeys; one key's failure never blocks the
// others. The returned error aggregates per-key failures.
func (o *Orchestrator) Sweep(ctx context.Context) error {
	o.deps.Metrics.RecordSweep()

	keys, err := o.deps.Snapshots.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list tracked keys: %w", err)
	}

	var (
		mu       sync.Mutex
		failures []error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxParallelKeys)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := o.ProcessKey(ctx, key); err != nil {
				o.logger.WarnContext(ctx, "policy key run failed",
					"policy_key", key.String(),
					"error", err,
				)
				mu.Lock()
				failures = append(failures, fmt.Errorf("%s: %w", key, err))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(failures...)
}

// ProcessKey runs the full pipeline for one policy key. Concurrent calls for
// the same key collapse: whoever loses the lease returns immediately with no
// side effects. Processing an already-ledgered transition is a no-op.
func (o *Orchestrator) ProcessKey(ctx context.Context, key policy.Key) error {
	start := time.Now()

	token, held, err := o.deps.Lease.Acquire(ctx, key, o.cfg.LeaseTTL)
	if err != nil {
		o.deps.Metrics.RecordKeyRun(outcomeFailed, time.Since(start))
		return fmt.Errorf("acquire lease: %w", err)
	}
	if !held {
		o.logger.InfoContext(ctx, "policy key run already in progress, skipping",
			"policy_key", key.String(),
		)
		o.deps.Metrics.RecordKeyRun(outcomeSkipped, time.Since(start))
		return nil
	}
	defer func() {
		if err := o.deps.Lease.Release(ctx, key, token); err != nil {
			o.logger.WarnContext(ctx, "lease release failed",
				"policy_key", key.String(),
				"error", err,
			)
		}
	}()

	outcome, err := o.run(ctx, key)
	o.deps.Metrics.RecordKeyRun(outcome, time.Since(start))
	return err
}

func (o *Orchestrator) run(ctx context.Context, key policy.Key) (string, error) {
	// Fetch the current upstream state.
	fields, err := o.deps.Source.Fetch(ctx, key)
	if err != nil {
		return outcomeFailed, fmt.Errorf("%s: %w", phaseFetching, err)
	}

	prev, err := o.deps.Snapshots.Latest(ctx, key)
	firstObservation := errors.Is(err, sentinel.ErrNotFound)
	if err != nil && !firstObservation {
		return outcomeFailed, fmt.Errorf("%s: load latest snapshot: %w", phaseFetching, err)
	}

	curr, created, err := o.deps.Snapshots.Append(ctx, key, fields)
	if err != nil {
		return outcomeFailed, fmt.Errorf("%s: append snapshot: %w", phaseFetching, err)
	}
	switch {
	case created && firstObservation:
		o.logger.InfoContext(ctx, "policy baseline captured",
			"policy_key", key.String(),
			"version", curr.Version,
		)
		return outcomeBaseline, nil
	case !created:
		if curr.Version < 2 {
			return outcomeUnchanged, nil
		}
		// Identical fetch. The latest transition may still be unledgered when
		// an earlier run died between appending and propagating; reload its
		// predecessor so the retry below picks it up.
		prev, err = o.deps.Snapshots.At(ctx, key, curr.Version-1)
		if err != nil {
			return outcomeFailed, fmt.Errorf("%s: load previous snapshot: %w", phaseFetching, err)
		}
	}

	seen, err := o.deps.Ledger.Seen(ctx, key, prev.Version, curr.Version)
	if err != nil {
		return outcomeFailed, fmt.Errorf("%s: check ledger: %w", phaseDiffing, err)
	}
	if seen {
		return outcomeUnchanged, nil
	}

	delta, err := policy.Diff(prev, curr)
	if err != nil {
		return outcomeFailed, fmt.Errorf("%s: %w", phaseDiffing, err)
	}
	if delta.Empty() {
		// Nothing user-visible changed; record the transition so it is never
		// revisited, but skip propagation entirely.
		if err := o.markProcessed(ctx, key, prev.Version, curr.Version); err != nil {
			return outcomeFailed, err
		}
		return outcomeUnchanged, nil
	}

	imp := impact.Classify(delta)
	o.deps.Metrics.RecordChange(imp.Severity.String())
	o.logger.InfoContext(ctx, "policy change classified",
		"policy_key", key.String(),
		"from_version", prev.Version,
		"to_version", curr.Version,
		"severity", imp.Severity,
		"action", imp.Action,
		"changed_fields", len(delta.Changes),
	)

	if err := o.propagate(ctx, key, imp); err != nil {
		return outcomeFailed, fmt.Errorf("%s: %w", phasePropagating, err)
	}

	if err := o.markProcessed(ctx, key, prev.Version, curr.Version); err != nil {
		return outcomeFailed, err
	}
	return outcomeChanged, nil
}

// propagate patches every checklist the change can affect and notifies each
// affected owner whose preferences admit the impact. Any failure leaves the
// transition unledgered; patches and notifications are safe to re-run because
// patching is idempotent per item and the gate re-evaluates from scratch.
func (o *Orchestrator) propagate(ctx context.Context, key policy.Key, imp impact.Result) error {
	lists, err := o.deps.Checklists.ListByCountry(ctx, key.Country)
	if err != nil {
		return fmt.Errorf("list affected checklists: %w", err)
	}

	affected := make(map[id.UserID]struct{})
	for _, cl := range lists {
		patch, err := o.deps.Reconciler.Apply(ctx, cl.ID, imp)
		if err != nil {
			return fmt.Errorf("reconcile checklist %s: %w", cl.ID, err)
		}
		if !patch.Empty() {
			o.deps.Metrics.RecordReconciled()
		}
		// Affected is decided by category overlap, not by what this attempt
		// changed: a retry after a failed attempt finds items already
		// annotated and an empty patch, but their owners are still owed a
		// notification.
		if patch.Empty() && !tracksImpactedCategory(cl, imp) {
			continue
		}
		affected[cl.UserID] = struct{}{}
	}

	for userID := range affected {
		pref, err := o.deps.Prefs.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("load preference for %s: %w", userID, err)
		}
		if !notify.ShouldNotify(pref, imp) {
			continue
		}
		n := notify.NewNotification(ctx, userID, imp)
		if err := o.deps.Notifier.Publish(ctx, n); err != nil {
			return fmt.Errorf("publish notification for %s: %w", userID, err)
		}
		o.deps.Metrics.RecordNotification()
	}
	return nil
}

// tracksImpactedCategory reports whether the checklist carries any item,
// obsolete included, in one of the impact's categories.
func tracksImpactedCategory(cl checklist.Checklist, imp impact.Result) bool {
	for _, item := range cl.Items {
		if imp.Affects(item.Category) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) markProcessed(ctx context.Context, key policy.Key, from, to int64) error {
	t := Transition{
		Key:         key,
		FromVersion: from,
		ToVersion:   to,
		ProcessedAt: requestcontext.Now(ctx),
	}
	if err := o.deps.Ledger.Mark(ctx, t); err != nil {
		return fmt.Errorf("mark transition processed: %w", err)
	}
	return nil
}
