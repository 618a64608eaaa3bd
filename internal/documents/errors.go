package documents

import "errors"

// Domain errors for financial documents.
var (
	// ErrValidation indicates caller input was rejected before any mutation.
	ErrValidation = errors.New("documents: validation failed")
	// ErrIndexOutOfRange indicates an item index outside the document lines.
	ErrIndexOutOfRange = errors.New("documents: item index out of range")
	// ErrInvalidTransition indicates the target status is not reachable.
	ErrInvalidTransition = errors.New("documents: invalid status transition")
	// ErrNotFound indicates the document does not exist in the tenant scope.
	ErrNotFound = errors.New("documents: not found")
	// ErrComputation indicates a non-finite monetary value.
	ErrComputation = errors.New("documents: non-finite amount")
	// ErrStaleVersion indicates the document changed since it was read.
	ErrStaleVersion = errors.New("documents: stale version")
)
