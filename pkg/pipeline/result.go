package pipeline

import (
	"context"

	"github.com/aurodev/usergrid/pkg/pipeline/cursor"
)

// PathEntry records one stage's position at the moment a result was
// emitted.
type PathEntry struct {
	StageID int
	State   cursor.StageState
}

// FilterResult is a value flowing through the pipeline together with
// the per-stage cursor path accumulated so far. The full path serializes
// into one opaque resume token.
type FilterResult[T any] struct {
	Value T
	Path  []PathEntry
}

// NewResult seeds a pipeline input with an empty path.
func NewResult[T any](value T) FilterResult[T] {
	return FilterResult[T]{Value: value}
}

// ChildResult extends a parent path with this stage's state.
func ChildResult[T any](value T, parent []PathEntry, stageID int, state cursor.StageState) FilterResult[T] {
	path := make([]PathEntry, len(parent), len(parent)+1)
	copy(path, parent)
	return FilterResult[T]{Value: value, Path: append(path, PathEntry{StageID: stageID, State: state})}
}

// CursorToken serializes a result's path into a resume token for a
// pipeline with the given stage count. Stages absent from the path
// encode as initial states.
func CursorToken[T any](r FilterResult[T], stages int) (string, error) {
	states := make([]cursor.StageState, stages)
	for _, e := range r.Path {
		if e.StageID >= 0 && e.StageID < stages {
			states[e.StageID] = e.State
		}
	}
	return cursor.Encode(states)
}

// Emit delivers r downstream unless the consumer is gone; it reports
// whether the stream is still live. Stages must check it before every
// individual result so a mid-page cancellation stops emission at once.
func Emit[T any](ctx context.Context, out chan<- FilterResult[T], r FilterResult[T]) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
