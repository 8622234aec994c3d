// Package checklist owns the user-facing checklist aggregate and the
// reconciler that folds classified policy impacts into it without destroying
// user progress.
package checklist

import (
	"time"

	id "immigo/pkg/domain"
)

// Item is a single task on a checklist, keyed by (Category, TaskSlug).
//
// Invariants:
//   - A completed item is never un-completed by reconciliation; the pipeline
//     may only set NeedsReview on it.
//   - Items are never deleted by the pipeline; removed requirements become
//     Obsolete and stay visible for audit continuity.
type Item struct {
	Category    id.Category `json:"category"`
	TaskSlug    string      `json:"task_slug"`
	Title       string      `json:"title"`
	Description string      `json:"description"`

	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// SourcePolicyVersion notes which policy version the item was last
	// reconciled against. Zero for items the user created by hand.
	SourcePolicyVersion int64 `json:"source_policy_version,omitempty"`

	NeedsReview bool `json:"needs_review"`
	Obsolete    bool `json:"obsolete"`
}

// Checklist is the aggregate root for one user's migration plan.
//
// Invariants:
//   - Belongs to exactly one user; UserID is immutable after creation.
//   - CompletedCount always equals the number of active (non-obsolete)
//     completed items, and TotalCount the number of active items. Counters
//     are recomputed from items after every patch, never drifted
//     incrementally.
//   - Version increments on every successful save; writers must present the
//     version they read (optimistic concurrency).
type Checklist struct {
	ID          id.ChecklistID `json:"id"`
	UserID      id.UserID      `json:"user_id"`
	Origin      id.CountryID   `json:"origin_country"`
	Destination id.CountryID   `json:"destination_country"`
	Title       string         `json:"title"`

	Items []Item `json:"items"`

	CompletedCount int `json:"completed_count"`
	TotalCount     int `json:"total_count"`

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item returns a pointer to the item with the given key, or nil.
func (c *Checklist) Item(category id.Category, slug string) *Item {
	for i := range c.Items {
		if c.Items[i].Category == category && c.Items[i].TaskSlug == slug {
			return &c.Items[i]
		}
	}
	return nil
}

// RecountProgress recomputes the aggregate counters from the items. Obsolete
// items drop out of progress tracking entirely but remain in Items.
func (c *Checklist) RecountProgress() {
	completed, total := 0, 0
	for i := range c.Items {
		if c.Items[i].Obsolete {
			continue
		}
		total++
		if c.Items[i].Completed {
			completed++
		}
	}
	c.CompletedCount = completed
	c.TotalCount = total
}

// Complete marks an item done at the given time. No-op if already completed.
func (c *Checklist) Complete(category id.Category, slug string, now time.Time) bool {
	item := c.Item(category, slug)
	if item == nil || item.Completed {
		return false
	}
	item.Completed = true
	item.CompletedAt = &now
	c.RecountProgress()
	return true
}

// Uncomplete clears completion on an item. Only direct user edits come
// through here; the reconciler never does.
func (c *Checklist) Uncomplete(category id.Category, slug string) bool {
	item := c.Item(category, slug)
	if item == nil || !item.Completed {
		return false
	}
	item.Completed = false
	item.CompletedAt = nil
	c.RecountProgress()
	return true
}

// Clone returns a deep copy so stores can hand out checklists without
// sharing the items slice.
func (c Checklist) Clone() Checklist {
	out := c
	out.Items = make([]Item, len(c.Items))
	copy(out.Items, c.Items)
	for i := range out.Items {
		if t := c.Items[i].CompletedAt; t != nil {
			ts := *t
			out.Items[i].CompletedAt = &ts
		}
	}
	return out
}
