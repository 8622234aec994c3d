package policy

import (
	"fmt"
	"sort"

	"immigo/pkg/platform/sentinel"
)

// Diff computes the field-level delta between two snapshots of the same key.
// This is pure domain logic - no I/O, no side effects.
//
// Comparison is exact string equality per field. Fields present on only one
// side are reported as changed with a nil Old or New. Changes come back
// sorted by field name so repeated runs produce identical deltas.
func Diff(prev, curr Snapshot) (Delta, error) {
	if prev.Key != curr.Key {
		return Delta{}, fmt.Errorf("diff %s against %s: %w", prev.Key, curr.Key, sentinel.ErrKeyMismatch)
	}

	names := make(map[string]struct{}, len(prev.Fields)+len(curr.Fields))
	for name := range prev.Fields {
		names[name] = struct{}{}
	}
	for name := range curr.Fields {
		names[name] = struct{}{}
	}

	var changes []FieldChange
	for name := range names {
		oldVal, hadOld := prev.Fields[name]
		newVal, hasNew := curr.Fields[name]
		if hadOld && hasNew && oldVal == newVal {
			continue
		}
		change := FieldChange{Field: name}
		if hadOld {
			v := oldVal
			change.Old = &v
		}
		if hasNew {
			v := newVal
			change.New = &v
		}
		changes = append(changes, change)
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })

	return Delta{
		Key:         curr.Key,
		FromVersion: prev.Version,
		ToVersion:   curr.Version,
		Changes:     changes,
	}, nil
}
