package notify

import "immigo/internal/impact"

// ShouldNotify decides whether an impact clears a user's preference bar.
// This is pure domain logic - no I/O, no side effects.
//
// True iff the impact severity is at or above the preferred minimum AND the
// impact's affected categories intersect the subscribed ones. An empty
// subscription means all categories.
func ShouldNotify(pref Preference, imp impact.Result) bool {
	if !imp.Severity.AtLeast(pref.MinSeverity) {
		return false
	}
	if len(pref.Categories) == 0 {
		return len(imp.Kinds) > 0
	}
	for _, category := range pref.Categories {
		if imp.Affects(category) {
			return true
		}
	}
	return false
}
