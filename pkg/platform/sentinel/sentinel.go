package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: optimistic version check failed, caller holds stale state
// - ErrLeaseHeld: another worker owns the lease for this key
// - ErrKeyMismatch: two snapshots from unrelated policy lines were compared
// - ErrUnavailable: upstream source or resource temporarily unreachable
// - ErrMalformed: upstream payload could not be decoded
//
// For validation errors (bad input, missing fields), use pkg/domainerrors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrLeaseHeld   = errors.New("lease held")
	ErrKeyMismatch = errors.New("policy key mismatch")
	ErrUnavailable = errors.New("unavailable")
	ErrMalformed   = errors.New("malformed payload")
)
