package checklist

import (
	"context"

	id "immigo/pkg/domain"
)

// Store persists checklists with optimistic versioning. Save enforces the
// version the writer read, so the reconciler and direct user edits can race
// without either silently clobbering the other.
type Store interface {
	// Create persists a new checklist at version 1.
	// Returns sentinel.ErrConflict if the ID already exists.
	Create(ctx context.Context, cl Checklist) (Checklist, error)

	// Get returns the checklist by ID.
	// Returns sentinel.ErrNotFound for an unknown ID.
	Get(ctx context.Context, clID id.ChecklistID) (Checklist, error)

	// ListByUser returns all checklists owned by a user.
	ListByUser(ctx context.Context, userID id.UserID) ([]Checklist, error)

	// ListByCountry returns checklists whose origin or destination matches,
	// i.e. the set a policy change for that country can affect.
	ListByCountry(ctx context.Context, country id.CountryID) ([]Checklist, error)

	// Save writes cl if the stored version still equals expectedVersion,
	// bumping the version by one. Returns sentinel.ErrConflict when another
	// writer got there first; callers re-read and retry.
	Save(ctx context.Context, cl Checklist, expectedVersion int64) (Checklist, error)
}
