package impact

import (
	"sort"

	"immigo/internal/policy"
	id "immigo/pkg/domain"
)

// rule is one row of the classification table.
type rule struct {
	severity Severity
	kinds    []id.Category
	action   Action
}

// fieldRules keys classification by snapshot field name. Every canonical
// field in policy.KnownFields has a row; anything else falls back to
// defaultRule so new upstream attributes degrade to a soft notification
// instead of being dropped.
var fieldRules = map[string]rule{
	policy.FieldRequirements: {
		severity: SeverityMajor,
		kinds:    []id.Category{id.CategoryLegal, id.CategoryDocumentation},
		action:   ActionReVerify,
	},
	policy.FieldEligibility: {
		severity: SeverityBlocking,
		kinds:    []id.Category{id.CategoryLegal},
		action:   ActionReVerify,
	},
	policy.FieldProcessingTime: {
		severity: SeverityMinor,
		kinds:    []id.Category{id.CategoryDocumentation},
		action:   ActionUpdateText,
	},
	policy.FieldCost: {
		severity: SeverityMinor,
		kinds:    []id.Category{id.CategoryFinancial},
		action:   ActionUpdateText,
	},
	policy.FieldStatus: {
		severity: SeverityBlocking,
		kinds:    []id.Category{id.CategoryLegal},
		action:   ActionRegenerate,
	},
	policy.FieldRequiredDocuments: {
		severity: SeverityMajor,
		kinds:    []id.Category{id.CategoryDocumentation},
		action:   ActionRegenerate,
	},
	policy.FieldValidityPeriod: {
		severity: SeverityMinor,
		kinds:    []id.Category{id.CategoryLegal},
		action:   ActionUpdateText,
	},
}

// defaultRule handles fields the table does not recognize.
var defaultRule = rule{
	severity: SeverityMinor,
	kinds:    []id.Category{id.CategoryOther},
	action:   ActionUpdateText,
}

// Classify maps a delta to its impact. This is pure domain logic - no I/O,
// no side effects. Composition across changed fields takes the maximum
// severity, the union of affected kinds, and the strongest action.
//
// An empty delta classifies as cosmetic/none with no kinds; callers
// short-circuit those before propagation.
func Classify(delta policy.Delta) Result {
	result := Result{
		Delta:    delta,
		Severity: SeverityCosmetic,
		Action:   ActionNone,
	}
	if delta.Empty() {
		return result
	}

	kinds := make(map[id.Category]struct{})
	result.Classified = make([]ClassifiedChange, 0, len(delta.Changes))
	for _, change := range delta.Changes {
		r, ok := fieldRules[change.Field]
		if !ok {
			r = defaultRule
		}
		result.Classified = append(result.Classified, ClassifiedChange{
			FieldChange: change,
			Severity:    r.severity,
			Kinds:       r.kinds,
			Action:      r.action,
		})
		if severityOrder[r.severity] > severityOrder[result.Severity] {
			result.Severity = r.severity
		}
		if actionOrder[r.action] > actionOrder[result.Action] {
			result.Action = r.action
		}
		for _, kind := range r.kinds {
			kinds[kind] = struct{}{}
		}
	}

	result.Kinds = make([]id.Category, 0, len(kinds))
	for kind := range kinds {
		result.Kinds = append(result.Kinds, kind)
	}
	sort.Slice(result.Kinds, func(i, j int) bool { return result.Kinds[i] < result.Kinds[j] })
	return result
}
