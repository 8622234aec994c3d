package checklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"immigo/internal/impact"
	"immigo/internal/policy"
	"immigo/internal/tips"
	id "immigo/pkg/domain"
	dErrors "immigo/pkg/domainerrors"
	"immigo/pkg/platform/sentinel"
	"immigo/pkg/requestcontext"
)

// Reconciler folds classified policy impacts into checklists. Patch
// computation is pure; application is transactional through the store's
// optimistic versioning, retried a bounded number of times so a concurrent
// user edit is never overwritten silently.
type Reconciler struct {
	store       Store
	texts       tips.Generator
	logger      *slog.Logger
	maxAttempts int
}

type ReconcilerOption func(*Reconciler)

func WithLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = logger }
}

// WithMaxAttempts bounds the optimistic retry budget per checklist.
func WithMaxAttempts(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func NewReconciler(store Store, texts tips.Generator, opts ...ReconcilerOption) (*Reconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("checklist store is required")
	}
	if texts == nil {
		texts = tips.NewFallbackGenerator()
	}
	r := &Reconciler{
		store:       store,
		texts:       texts,
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// BuildPatch computes the reconciliation outcome for one checklist.
// Deterministic given the checklist, the impact, and the text generator.
//
// Rules:
//   - Incomplete affected items get refreshed text and a bumped
//     SourcePolicyVersion.
//   - Completed affected items only get NeedsReview; completion is sacred.
//   - On a regenerate action, introduced requirements append new items and
//     removed requirements mark their generated items obsolete. Nothing is
//     ever deleted.
func (r *Reconciler) BuildPatch(ctx context.Context, cl Checklist, imp impact.Result) (Patch, error) {
	patch := Patch{
		ChecklistID: cl.ID,
		PolicyKey:   imp.Delta.Key,
		FromVersion: imp.Delta.FromVersion,
		ToVersion:   imp.Delta.ToVersion,
	}
	if imp.Delta.Empty() || imp.Action == impact.ActionNone {
		return patch, nil
	}

	for i := range cl.Items {
		item := &cl.Items[i]
		if item.Obsolete || !imp.Affects(item.Category) {
			continue
		}
		if item.Completed {
			if !item.NeedsReview {
				flag := true
				patch.ItemPatches = append(patch.ItemPatches, ItemPatch{
					Category:    item.Category,
					TaskSlug:    item.TaskSlug,
					NeedsReview: &flag,
				})
			}
			continue
		}
		text, err := r.refreshText(ctx, item.Category, imp)
		if err != nil {
			return Patch{}, fmt.Errorf("refresh text for %s/%s: %w", item.Category, item.TaskSlug, err)
		}
		version := imp.Delta.ToVersion
		patch.ItemPatches = append(patch.ItemPatches, ItemPatch{
			Category:            item.Category,
			TaskSlug:            item.TaskSlug,
			Description:         &text,
			SourcePolicyVersion: &version,
		})
	}

	if imp.Action == impact.ActionRegenerate {
		if err := r.regenerate(ctx, cl, imp, &patch); err != nil {
			return Patch{}, err
		}
	}
	return patch, nil
}

// Apply reconciles the checklist identified by the patch target against imp,
// retrying against the freshest state on version conflicts. After the retry
// budget is exhausted the conflict surfaces to the caller, who queues the
// checklist for the next run.
func (r *Reconciler) Apply(ctx context.Context, clID id.ChecklistID, imp impact.Result) (Patch, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		cl, err := r.store.Get(ctx, clID)
		if err != nil {
			return Patch{}, err
		}
		patch, err := r.BuildPatch(ctx, cl, imp)
		if err != nil {
			return Patch{}, err
		}
		if patch.Empty() {
			return patch, nil
		}
		updated := ApplyPatch(cl, patch, requestcontext.Now(ctx))
		if _, err := r.store.Save(ctx, updated, cl.Version); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				lastErr = err
				if r.logger != nil {
					r.logger.WarnContext(ctx, "checklist reconciliation retry",
						"checklist_id", cl.ID,
						"attempt", attempt,
					)
				}
				continue
			}
			return Patch{}, err
		}
		return patch, nil
	}
	return Patch{}, dErrors.Wrap(lastErr, dErrors.CodeConflict, "checklist changed concurrently, reconciliation deferred")
}

// refreshText picks the most relevant classified change for a category and
// asks the generator for new item text.
func (r *Reconciler) refreshText(ctx context.Context, category id.Category, imp impact.Result) (string, error) {
	for _, cc := range imp.Classified {
		for _, kind := range cc.Kinds {
			if kind != category {
				continue
			}
			return r.texts.ItemText(ctx, category, tips.Context{
				Key:   imp.Delta.Key,
				Field: cc.Field,
				Old:   cc.Old,
				New:   cc.New,
			})
		}
	}
	// Affected via the composed kinds but no single change matched; use the
	// first change as context rather than inventing text.
	cc := imp.Classified[0]
	return r.texts.ItemText(ctx, category, tips.Context{
		Key:   imp.Delta.Key,
		Field: cc.Field,
		Old:   cc.Old,
		New:   cc.New,
	})
}

// regenerate appends items for requirements the change introduced and marks
// generated items obsolete for requirements it removed.
func (r *Reconciler) regenerate(ctx context.Context, cl Checklist, imp impact.Result, patch *Patch) error {
	for _, cc := range imp.Classified {
		if cc.Action != impact.ActionRegenerate {
			continue
		}
		slug := GeneratedSlug(imp.Delta.Key, cc.Field)
		switch {
		case cc.New == nil:
			// Requirement removed upstream: retire the generated item.
			for i := range cl.Items {
				item := &cl.Items[i]
				if item.TaskSlug != slug || item.Obsolete {
					continue
				}
				flag := true
				patch.ItemPatches = append(patch.ItemPatches, ItemPatch{
					Category: item.Category,
					TaskSlug: item.TaskSlug,
					Obsolete: &flag,
				})
			}
		default:
			for _, kind := range cc.Kinds {
				if existing := cl.Item(kind, slug); existing != nil && !existing.Obsolete {
					continue
				}
				text, err := r.texts.ItemText(ctx, kind, tips.Context{
					Key:   imp.Delta.Key,
					Field: cc.Field,
					Old:   cc.Old,
					New:   cc.New,
				})
				if err != nil {
					return fmt.Errorf("generate item text for %s: %w", slug, err)
				}
				patch.NewItems = append(patch.NewItems, Item{
					Category:            kind,
					TaskSlug:            slug,
					Title:               generatedTitle(cc.Field),
					Description:         text,
					SourcePolicyVersion: imp.Delta.ToVersion,
				})
			}
		}
	}
	return nil
}

// GeneratedSlug is the stable task slug for pipeline-generated items, so
// repeated regenerations find their own items instead of stacking duplicates.
func GeneratedSlug(key policy.Key, field string) string {
	return strings.ReplaceAll(strings.ToLower(key.String()), "/", "-") + "-" + kebab(field)
}

func generatedTitle(field string) string {
	words := strings.ReplaceAll(kebab(field), "-", " ")
	return "Updated " + words
}

// kebab turns camelCase field names into kebab-case slugs.
func kebab(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
