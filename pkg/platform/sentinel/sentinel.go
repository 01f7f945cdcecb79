package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors:
//   - ErrNotFound: no row matches the owner-scoped lookup
//   - ErrConflict: a uniqueness constraint rejected the write; the caller may retry
//   - ErrInvalidState: the row exists but its state forbids the mutation
//   - ErrUnavailable: a dependency could not be reached
//
// Validation failures never use these; return pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
