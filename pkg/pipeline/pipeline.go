// Package pipeline composes resumable traversal stages into a single
// streaming execution. Each stage reads results from the previous stage,
// emits its own results with an extended cursor path, and resumes from a
// decoded stage state when the traversal carries a cursor.
package pipeline

import (
	"context"
	"sync"

	"github.com/aurodev/usergrid/pkg/pipeline/cursor"
)

// StageContext carries a stage's identity, resume state and page size
// into Run. The stage never sees cursor material for other stages.
type StageContext struct {
	StageID int
	Resume  cursor.StageState
	Limit   int
}

// Stage is a single pipeline step. Run consumes upstream results until
// in closes or ctx is cancelled, emits downstream results via Emit,
// and returns the first terminal error it hits. A stage must not keep
// emitting after Emit reports the consumer gone.
type Stage[I, O any] interface {
	Run(ctx context.Context, sc *StageContext, in <-chan FilterResult[I], out chan<- FilterResult[O]) error
}

// StageFunc adapts a function to the Stage interface.
type StageFunc[I, O any] func(ctx context.Context, sc *StageContext, in <-chan FilterResult[I], out chan<- FilterResult[O]) error

func (f StageFunc[I, O]) Run(ctx context.Context, sc *StageContext, in <-chan FilterResult[I], out chan<- FilterResult[O]) error {
	return f(ctx, sc, in, out)
}

// Pipeline is an immutable chain of stages from I to O. Stages are
// numbered in build order; the cursor codec requires exactly one state
// per stage, so the stage count is fixed at build time.
type Pipeline[I, O any] struct {
	stages int
	limit  int
	run    func(ctx context.Context, states []cursor.StageState, in <-chan FilterResult[I]) (<-chan FilterResult[O], <-chan error)
}

// New starts a pipeline with a single stage. limit bounds both page
// sizes handed to stages and channel buffering between them.
func New[I, O any](limit int, s Stage[I, O]) *Pipeline[I, O] {
	if limit <= 0 {
		limit = 1
	}
	return &Pipeline[I, O]{
		stages: 1,
		limit:  limit,
		run: func(ctx context.Context, states []cursor.StageState, in <-chan FilterResult[I]) (<-chan FilterResult[O], <-chan error) {
			return runStage(ctx, s, &StageContext{StageID: 0, Resume: states[0], Limit: limit}, in, nil)
		},
	}
}

// Append extends a pipeline with a further stage. It is a function
// rather than a method because the output type changes.
func Append[I, M, O any](p *Pipeline[I, M], s Stage[M, O]) *Pipeline[I, O] {
	id := p.stages
	return &Pipeline[I, O]{
		stages: p.stages + 1,
		limit:  p.limit,
		run: func(ctx context.Context, states []cursor.StageState, in <-chan FilterResult[I]) (<-chan FilterResult[O], <-chan error) {
			mid, merr := p.run(ctx, states, in)
			return runStage(ctx, s, &StageContext{StageID: id, Resume: states[id], Limit: p.limit}, mid, merr)
		},
	}
}

func runStage[I, O any](ctx context.Context, s Stage[I, O], sc *StageContext, in <-chan FilterResult[I], upstream <-chan error) (<-chan FilterResult[O], <-chan error) {
	out := make(chan FilterResult[O], sc.Limit)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		err := s.Run(ctx, sc, in, out)
		if upstream != nil {
			if err != nil {
				// release a producer blocked on a send so it can
				// finish and close its error channel.
				for range in {
				}
			}
			if uerr := <-upstream; uerr != nil && err == nil {
				err = uerr
			}
		}
		if err != nil {
			errc <- err
		}
	}()
	return out, errc
}

// Stages reports the number of stages in the pipeline.
func (p *Pipeline[I, O]) Stages() int { return p.stages }

// Stream is a running traversal. Consume C until it closes, then check
// Err for the traversal's single terminal error.
type Stream[O any] struct {
	C <-chan FilterResult[O]

	cancel context.CancelFunc
	errc   <-chan error
	once   sync.Once
	err    error
}

// Close abandons the traversal. Stages observe the cancellation and
// stop; consuming C afterwards is safe but yields no further results.
func (s *Stream[O]) Close() {
	s.cancel()
	for range s.C {
	}
}

// Err reports the terminal error of the traversal. It blocks until the
// pipeline has finished, so call it only after C is closed.
func (s *Stream[O]) Err() error {
	s.once.Do(func() {
		s.err = <-s.errc
		s.cancel()
	})
	return s.err
}

// Collect drains the stream into a slice, stopping early when the
// context is cancelled, and returns the traversal error if any.
func (s *Stream[O]) Collect(ctx context.Context) ([]FilterResult[O], error) {
	var results []FilterResult[O]
	for {
		select {
		case r, ok := <-s.C:
			if !ok {
				return results, s.Err()
			}
			results = append(results, r)
		case <-ctx.Done():
			return results, ctx.Err()
		}
	}
}

// Execute decodes the resume token against the pipeline's stage count
// and starts the traversal from the given seeds. A token of the wrong
// shape fails fast with cursor.ErrMalformedCursor before any stage runs.
func (p *Pipeline[I, O]) Execute(ctx context.Context, token string, seeds ...FilterResult[I]) (*Stream[O], error) {
	states, err := cursor.Decode(token, p.stages)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	in := make(chan FilterResult[I], len(seeds))
	for _, s := range seeds {
		in <- s
	}
	close(in)
	out, errc := p.run(ctx, states, in)
	return &Stream[O]{C: out, cancel: cancel, errc: errc}, nil
}
