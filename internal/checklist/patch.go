package checklist

import (
	"time"

	"immigo/internal/policy"
	id "immigo/pkg/domain"
)

// ItemPatch is a non-destructive change to one existing item. Nil pointers
// leave the field alone. There is intentionally no way to express "set
// Completed=false": reconciliation cannot undo user progress.
type ItemPatch struct {
	Category id.Category `json:"category"`
	TaskSlug string      `json:"task_slug"`

	Description         *string `json:"description,omitempty"`
	SourcePolicyVersion *int64  `json:"source_policy_version,omitempty"`
	NeedsReview         *bool   `json:"needs_review,omitempty"`
	Obsolete            *bool   `json:"obsolete,omitempty"`
}

// Patch is the full reconciliation outcome for one checklist against one
// impact. It is computed pure and applied atomically.
type Patch struct {
	ChecklistID id.ChecklistID `json:"checklist_id"`
	PolicyKey   policy.Key     `json:"policy_key"`
	FromVersion int64          `json:"from_version"`
	ToVersion   int64          `json:"to_version"`

	ItemPatches []ItemPatch `json:"item_patches"`
	NewItems    []Item      `json:"new_items"`
}

// Empty reports whether applying the patch would change nothing.
func (p Patch) Empty() bool {
	return len(p.ItemPatches) == 0 && len(p.NewItems) == 0
}

// ApplyPatch folds a patch into a copy of the checklist and recomputes the
// aggregate counters. This is pure domain logic - no I/O, no side effects.
// Completion state is never touched: patches can only annotate.
func ApplyPatch(cl Checklist, patch Patch, now time.Time) Checklist {
	out := cl.Clone()
	for _, ip := range patch.ItemPatches {
		item := out.Item(ip.Category, ip.TaskSlug)
		if item == nil {
			continue
		}
		if ip.Description != nil {
			item.Description = *ip.Description
		}
		if ip.SourcePolicyVersion != nil {
			item.SourcePolicyVersion = *ip.SourcePolicyVersion
		}
		if ip.NeedsReview != nil {
			item.NeedsReview = *ip.NeedsReview
		}
		if ip.Obsolete != nil {
			item.Obsolete = *ip.Obsolete
		}
	}
	for _, item := range patch.NewItems {
		if out.Item(item.Category, item.TaskSlug) != nil {
			continue
		}
		out.Items = append(out.Items, item)
	}
	out.RecountProgress()
	out.UpdatedAt = now
	return out
}
