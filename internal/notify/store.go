package notify

import (
	"context"

	id "immigo/pkg/domain"
)

// PreferenceStore persists per-user notification preferences.
type PreferenceStore interface {
	// Get returns the stored preference for a user, or the default when the
	// user never saved one. Never returns ErrNotFound: every user has an
	// effective preference.
	Get(ctx context.Context, userID id.UserID) (Preference, error)

	// Put upserts a user's preference.
	Put(ctx context.Context, pref Preference) error
}
