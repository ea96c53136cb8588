package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can decide whether a failure is fatal, recoverable or
// simply an absent record.
//
//   - ErrNotFound: record does not exist in the store
//   - ErrInvalidKey: natural key has neither a registry id nor a person id
//   - ErrInvalidState: entity or run in the wrong state for the operation
//   - ErrUnavailable: backing service temporarily unavailable
//   - ErrConflict: competing writer holds the resource
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidKey   = errors.New("invalid natural key")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
