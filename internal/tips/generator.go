// Package tips is the boundary to the text generation backend. The pipeline
// only ever calls it with already-classified impact context, never raw policy
// payloads, so whatever sits behind the interface cannot see upstream data.
package tips

import (
	"context"

	"immigo/internal/policy"
	id "immigo/pkg/domain"
)

// Context carries the classified change a text is requested for.
type Context struct {
	Key   policy.Key
	Field string
	Old   *string
	New   *string
}

// Generator produces human-readable checklist item text. Implementations may
// call an external model; FallbackGenerator works offline.
type Generator interface {
	ItemText(ctx context.Context, category id.Category, tc Context) (string, error)
}
