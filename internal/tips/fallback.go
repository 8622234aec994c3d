package tips

import (
	"context"
	"fmt"

	id "immigo/pkg/domain"
)

// FallbackGenerator produces deterministic template text when no external
// generator is wired. Kept intentionally dry: the point is a correct,
// reviewable sentence, not prose quality.
type FallbackGenerator struct{}

func NewFallbackGenerator() *FallbackGenerator {
	return &FallbackGenerator{}
}

var categoryLeads = map[id.Category]string{
	id.CategoryLegal:         "Check the updated legal requirement",
	id.CategoryDocumentation: "Review the updated documentation guidance",
	id.CategoryFinancial:     "Review the updated cost information",
	id.CategoryHealth:        "Review the updated health requirement",
	id.CategoryEducation:     "Review the updated education requirement",
	id.CategoryLanguage:      "Review the updated language requirement",
}

func (g *FallbackGenerator) ItemText(_ context.Context, category id.Category, tc Context) (string, error) {
	lead, ok := categoryLeads[category]
	if !ok {
		lead = "Review the updated requirement"
	}
	switch {
	case tc.Old == nil && tc.New != nil:
		return fmt.Sprintf("%s for %s: %s is now %q.", lead, tc.Key, tc.Field, *tc.New), nil
	case tc.New == nil && tc.Old != nil:
		return fmt.Sprintf("%s for %s: %s no longer applies (was %q).", lead, tc.Key, tc.Field, *tc.Old), nil
	case tc.Old != nil && tc.New != nil:
		return fmt.Sprintf("%s for %s: %s changed from %q to %q.", lead, tc.Key, tc.Field, *tc.Old, *tc.New), nil
	default:
		return fmt.Sprintf("%s for %s.", lead, tc.Key), nil
	}
}
