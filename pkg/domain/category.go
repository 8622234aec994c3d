package domain

import "fmt"

// Category tags a checklist item with the kind of task it covers. Impact
// classification targets categories, never individual items, so the pipeline
// stays decoupled from checklist contents.
type Category string

const (
	CategoryPreDeparture  Category = "pre_departure"
	CategoryArrival       Category = "arrival"
	CategoryLegal         Category = "legal"
	CategoryDocumentation Category = "documentation"
	CategoryFinancial     Category = "financial"
	CategoryHealth        Category = "health"
	CategoryEducation     Category = "education"
	CategoryHousing       Category = "housing"
	CategoryLanguage      Category = "language"
	CategoryOther         Category = "other"
)

var knownCategories = map[Category]struct{}{
	CategoryPreDeparture:  {},
	CategoryArrival:       {},
	CategoryLegal:         {},
	CategoryDocumentation: {},
	CategoryFinancial:     {},
	CategoryHealth:        {},
	CategoryEducation:     {},
	CategoryHousing:       {},
	CategoryLanguage:      {},
	CategoryOther:         {},
}

// ParseCategory validates and returns a Category.
// Returns an error if the category is unknown.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if _, ok := knownCategories[c]; !ok {
		return "", fmt.Errorf("unknown checklist category: %q", s)
	}
	return c, nil
}

func (c Category) String() string { return string(c) }
