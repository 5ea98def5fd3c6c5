package metadata

import "errors"

var (
	// ErrIndexWrite wraps store failures on batched metadata writes and
	// deletes. Retryable by the caller; no partial silent success.
	ErrIndexWrite = errors.New("metadata: index write failure")

	// ErrInvariantRisk is returned by CheckDeleteSafety when a live edge
	// of the given type at version <= the delete version still exists,
	// so removing the metadata column would lose type-discovery info.
	ErrInvariantRisk = errors.New("metadata: delete-safety precondition violated")
)
