// Package impact maps policy deltas to their consequences for checklists and
// users. Everything in here is pure domain logic - no I/O, no side effects -
// so the orchestrator can call it from any worker without coordination.
package impact

import (
	"immigo/internal/policy"
	id "immigo/pkg/domain"
)

// Severity grades how disruptive a policy change is for affected users.
type Severity string

const (
	SeverityCosmetic Severity = "cosmetic"
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityBlocking Severity = "blocking"
)

// severityOrder defines the ordering for comparison and gating.
var severityOrder = map[Severity]int{
	SeverityCosmetic: 0,
	SeverityMinor:    1,
	SeverityMajor:    2,
	SeverityBlocking: 3,
}

// AtLeast reports whether s is at or above the threshold.
// Unknown severities rank below every known one.
func (s Severity) AtLeast(threshold Severity) bool {
	return severityOrder[s] >= severityOrder[threshold]
}

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	_, ok := severityOrder[s]
	return ok
}

func (s Severity) String() string { return string(s) }

// Action is the recommended checklist response to a change.
type Action string

const (
	ActionNone       Action = "none"
	ActionUpdateText Action = "update-text"
	ActionReVerify   Action = "re-verify"
	ActionRegenerate Action = "regenerate"
)

// actionOrder ranks actions by how invasive they are; composing multiple
// changed fields keeps the strongest one.
var actionOrder = map[Action]int{
	ActionNone:       0,
	ActionUpdateText: 1,
	ActionReVerify:   2,
	ActionRegenerate: 3,
}

func (a Action) String() string { return string(a) }

// ClassifiedChange pairs one field change with the rule row it matched, so
// the reconciler can work change by change instead of from the composed
// aggregate alone.
type ClassifiedChange struct {
	policy.FieldChange
	Severity Severity      `json:"severity"`
	Kinds    []id.Category `json:"kinds"`
	Action   Action        `json:"action"`
}

// Result is the classified consequence of one delta. Deterministic given the
// delta and the rule table; recomputed per run and cached only through the
// processed-transitions ledger.
//
// Severity, Kinds, and Action are the composition across all changed fields:
// maximum severity, union of kinds, strongest action.
type Result struct {
	Delta      policy.Delta       `json:"delta"`
	Severity   Severity           `json:"severity"`
	Kinds      []id.Category      `json:"affected_item_kinds"`
	Action     Action             `json:"recommended_action"`
	Classified []ClassifiedChange `json:"classified_changes"`
}

// Affects reports whether the result touches the given checklist category.
func (r Result) Affects(category id.Category) bool {
	for _, kind := range r.Kinds {
		if kind == category {
			return true
		}
	}
	return false
}
