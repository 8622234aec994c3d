package policy

import "context"

// Source is the external policy data collaborator. Implementations talk to
// government sites, aggregator APIs, or fixtures in tests.
//
// Fetch failures are reported through sentinel errors:
//   - sentinel.ErrUnavailable: source unreachable, retry on the next sweep
//   - sentinel.ErrMalformed: payload decoded but made no sense
type Source interface {
	Fetch(ctx context.Context, key Key) (Fields, error)
}
