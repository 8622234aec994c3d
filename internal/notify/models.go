// Package notify decides which users hear about a classified policy change
// and hands the survivors to the delivery collaborator. Delivery channels
// (push, email, SMS) are someone else's problem.
package notify

import (
	"time"

	"immigo/internal/impact"
	id "immigo/pkg/domain"
)

// Preference is a user's filter for policy change notifications.
//
// Zero-value semantics: an empty Categories slice subscribes to every
// category. MinSeverity is validated on write; stored records always carry a
// known severity.
type Preference struct {
	UserID      id.UserID       `json:"user_id"`
	MinSeverity impact.Severity `json:"min_severity"`
	Categories  []id.Category   `json:"categories"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// DefaultPreference notifies on minor and above across all categories.
func DefaultPreference(userID id.UserID) Preference {
	return Preference{
		UserID:      userID,
		MinSeverity: impact.SeverityMinor,
	}
}

// Notification is the delivery-ready record handed to the Notifier once the
// gate passes.
type Notification struct {
	ID        string        `json:"id"`
	UserID    id.UserID     `json:"user_id"`
	Impact    impact.Result `json:"impact"`
	CreatedAt time.Time     `json:"created_at"`
}
