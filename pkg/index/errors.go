package index

import (
	"errors"
	"fmt"
)

// ErrQueryRejected marks a query disallowed by the index's analyzer or
// policy. It terminates the traversal stream cleanly and is not logged
// as an unexpected error; match with errors.Is.
var ErrQueryRejected = errors.New("query rejected")

// QueryRejectedError carries the rejection cause.
type QueryRejectedError struct {
	Reason string
}

func (e *QueryRejectedError) Error() string {
	return fmt.Sprintf("query rejected: %s", e.Reason)
}

func (e *QueryRejectedError) Unwrap() error {
	return ErrQueryRejected
}

// Rejected wraps a reason as a QueryRejectedError.
func Rejected(reason string) error {
	return &QueryRejectedError{Reason: reason}
}

// ErrQueryExecution marks a search that reached the index but failed
// there. Unlike a rejection it is unexpected and gets logged.
var ErrQueryExecution = errors.New("query execution failed")

// ExecutionFailed wraps an index-side failure for errors.Is matching.
func ExecutionFailed(err error) error {
	return fmt.Errorf("%w: %v", ErrQueryExecution, err)
}
