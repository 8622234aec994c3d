package domain

import (
	"fmt"
	"strings"
)

// CountryID is an ISO-3166 style country code identifying a tracked country.
// This is a domain primitive that enforces validity at parse time.
type CountryID string

// ParseCountryID validates and returns a CountryID. Codes are upper-cased so
// "us" and "US" name the same country. Only ASCII letters are accepted.
func ParseCountryID(s string) (CountryID, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 || len(s) > 3 {
		return "", fmt.Errorf("invalid country code: %q", s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return "", fmt.Errorf("invalid country code: %q", s)
		}
	}
	return CountryID(s), nil
}

func (c CountryID) String() string { return string(c) }

// IsNil returns true if the country ID is empty.
func (c CountryID) IsNil() bool { return c == "" }

// UserID is the stable identifier handed to us by the identity provider.
// We never mint these ourselves.
type UserID string

func (u UserID) String() string { return string(u) }

func (u UserID) IsNil() bool { return u == "" }

// ChecklistID identifies a single user-owned checklist.
type ChecklistID string

func (c ChecklistID) String() string { return string(c) }

func (c ChecklistID) IsNil() bool { return c == "" }
