// Package policy holds the immutable policy snapshot model and the pure
// field-level differ. Snapshots are append-only: ingestion is the only writer
// and nothing ever edits a written version.
package policy

import (
	"fmt"
	"time"

	id "immigo/pkg/domain"
)

// Key identifies a tracked policy line: one (country, policy type) pair.
// Keys are stable and never reused across unrelated policies.
type Key struct {
	Country id.CountryID  `json:"country"`
	Type    id.PolicyType `json:"policy_type"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Country, k.Type)
}

// IsNil returns true if either half of the key is missing.
func (k Key) IsNil() bool {
	return k.Country.IsNil() || k.Type.IsNil()
}

// Canonical snapshot field names. The upstream source may send more; unknown
// fields still flow through diffing and get the classifier's default handling.
const (
	FieldRequirements      = "requirements"
	FieldEligibility       = "eligibility"
	FieldProcessingTime    = "processingTime"
	FieldCost              = "cost"
	FieldStatus            = "status"
	FieldRequiredDocuments = "requiredDocuments"
	FieldValidityPeriod    = "validityPeriod"
)

// KnownFields lists every canonical field a snapshot can carry. The impact
// classifier's rule table is tested for exhaustive coverage against this set.
func KnownFields() []string {
	return []string{
		FieldRequirements,
		FieldEligibility,
		FieldProcessingTime,
		FieldCost,
		FieldStatus,
		FieldRequiredDocuments,
		FieldValidityPeriod,
	}
}

// Fields is the attribute map captured from the policy source.
type Fields map[string]string

// Equal reports field-wise equality. Used by the snapshot store to suppress
// version churn from identical re-fetches.
func (f Fields) Equal(other Fields) bool {
	if len(f) != len(other) {
		return false
	}
	for k, v := range f {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Clone returns an independent copy so stored snapshots stay immutable even
// if the caller keeps mutating its map.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Snapshot is the recorded state of a policy line at a version. Immutable
// once written; versions are per-key monotonic starting at 1.
type Snapshot struct {
	Key        Key       `json:"key"`
	Version    int64     `json:"version"`
	CapturedAt time.Time `json:"captured_at"`
	Fields     Fields    `json:"fields"`
}

// FieldChange records one changed attribute between two snapshots. A nil Old
// means the field appeared; a nil New means it disappeared.
type FieldChange struct {
	Field string  `json:"field"`
	Old   *string `json:"old"`
	New   *string `json:"new"`
}

// Delta is the structured difference between two snapshots of the same key.
// It is derived data: always recomputable from the snapshot pair, never
// persisted on its own.
type Delta struct {
	Key         Key           `json:"key"`
	FromVersion int64         `json:"from_version"`
	ToVersion   int64         `json:"to_version"`
	Changes     []FieldChange `json:"changes"`
}

// Empty reports a no-op delta. Callers must treat this as "no impact", not
// as an error.
func (d Delta) Empty() bool {
	return len(d.Changes) == 0
}
