package domain

import "fmt"

// PolicyType names the kind of immigration policy a snapshot line tracks.
type PolicyType string

// Tracked policy types. The set mirrors the upstream policy catalogue; new
// kinds only need a constant here and a classifier rule if their fields
// deserve anything stronger than the default handling.
const (
	PolicyVisaRequirement      PolicyType = "visa_requirement"
	PolicyDocumentRequirement  PolicyType = "document_requirement"
	PolicyHealthRequirement    PolicyType = "health_requirement"
	PolicyFinancialRequirement PolicyType = "financial_requirement"
	PolicyLanguageRequirement  PolicyType = "language_requirement"
	PolicyWorkPermit           PolicyType = "work_permit"
	PolicyResidencePermit      PolicyType = "residence_permit"
	PolicyCitizenship          PolicyType = "citizenship"
	PolicyOther                PolicyType = "other"
)

var knownPolicyTypes = map[PolicyType]struct{}{
	PolicyVisaRequirement:      {},
	PolicyDocumentRequirement:  {},
	PolicyHealthRequirement:    {},
	PolicyFinancialRequirement: {},
	PolicyLanguageRequirement:  {},
	PolicyWorkPermit:           {},
	PolicyResidencePermit:      {},
	PolicyCitizenship:          {},
	PolicyOther:                {},
}

// ParsePolicyType validates and returns a PolicyType.
// Returns an error if the type is unknown.
func ParsePolicyType(s string) (PolicyType, error) {
	t := PolicyType(s)
	if _, ok := knownPolicyTypes[t]; !ok {
		return "", fmt.Errorf("unknown policy type: %q", s)
	}
	return t, nil
}

func (t PolicyType) String() string { return string(t) }

func (t PolicyType) IsNil() bool { return t == "" }
