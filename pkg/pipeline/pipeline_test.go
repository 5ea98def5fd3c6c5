package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aurodev/usergrid/pkg/pipeline/cursor"
)

// emits count ints per input, tagging each with this stage's offset state
func emitStage(count int) StageFunc[int, int] {
	return func(ctx context.Context, sc *StageContext, in <-chan FilterResult[int], out chan<- FilterResult[int]) error {
		for parent := range in {
			start := 0
			if sc.Resume.Offset != nil {
				start = *sc.Resume.Offset
			}
			for i := start; i < count; i++ {
				r := ChildResult(parent.Value*10+i, parent.Path, sc.StageID, cursor.OffsetState(i+1))
				if !Emit(ctx, out, r) {
					return nil
				}
			}
		}
		return nil
	}
}

func passThrough() StageFunc[int, string] {
	return func(ctx context.Context, sc *StageContext, in <-chan FilterResult[int], out chan<- FilterResult[string]) error {
		for parent := range in {
			r := ChildResult(fmt.Sprintf("v%d", parent.Value), parent.Path, sc.StageID, cursor.Empty())
			if !Emit(ctx, out, r) {
				return nil
			}
		}
		return nil
	}
}

func TestPipelineStreamsThroughStages(t *testing.T) {
	p := Append(New[int, int](10, emitStage(3)), passThrough())
	if p.Stages() != 2 {
		t.Fatalf("expected 2 stages, got %d", p.Stages())
	}

	stream, err := p.Execute(context.Background(), "", NewResult(1))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	results, err := stream.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := []string{"v10", "v11", "v12"}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, r := range results {
		if r.Value != want[i] {
			t.Fatalf("result %d: got %q want %q", i, r.Value, want[i])
		}
	}
}

func TestPipelineResumesFromCursor(t *testing.T) {
	p := New[int, int](10, emitStage(5))

	stream, err := p.Execute(context.Background(), "", NewResult(0))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	first, err := stream.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(first) != 5 {
		t.Fatalf("expected 5 results, got %d", len(first))
	}

	// resume after the third result; only the remaining two come back
	token, err := CursorToken(first[2], p.Stages())
	if err != nil {
		t.Fatalf("CursorToken: %v", err)
	}
	stream, err = p.Execute(context.Background(), token, NewResult(0))
	if err != nil {
		t.Fatalf("Execute resumed: %v", err)
	}
	rest, err := stream.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect resumed: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("expected 2 remaining results, got %d", len(rest))
	}
	if rest[0].Value != 3 || rest[1].Value != 4 {
		t.Fatalf("unexpected resumed values: %d %d", rest[0].Value, rest[1].Value)
	}
}

func TestExecuteRejectsWrongShapeToken(t *testing.T) {
	p := New[int, int](10, emitStage(1))
	token, err := cursor.Encode([]cursor.StageState{cursor.OffsetState(1), cursor.OffsetState(2)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := p.Execute(context.Background(), token, NewResult(0)); !errors.Is(err, cursor.ErrMalformedCursor) {
		t.Fatalf("expected ErrMalformedCursor, got %v", err)
	}
}

func TestPipelinePropagatesStageError(t *testing.T) {
	boom := errors.New("boom")
	failing := StageFunc[int, int](func(ctx context.Context, sc *StageContext, in <-chan FilterResult[int], out chan<- FilterResult[int]) error {
		return boom
	})
	p := Append(New[int, int](10, emitStage(3)), failing)

	stream, err := p.Execute(context.Background(), "", NewResult(0))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := stream.Collect(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected stage error, got %v", err)
	}
}

// a downstream failure must not leave the upstream producer blocked on
// a full channel
func TestPipelineDownstreamErrorReleasesProducer(t *testing.T) {
	boom := errors.New("boom")
	failing := StageFunc[int, int](func(ctx context.Context, sc *StageContext, in <-chan FilterResult[int], out chan<- FilterResult[int]) error {
		<-in
		return boom
	})
	// limit 1 keeps channel buffers tiny so the producer would block
	p := Append(New[int, int](1, emitStage(100)), failing)

	stream, err := p.Execute(context.Background(), "", NewResult(0))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := stream.Collect(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected stage error, got %v", err)
	}
}

func TestStreamCloseStopsStages(t *testing.T) {
	p := New[int, int](1, emitStage(100000))
	stream, err := p.Execute(context.Background(), "", NewResult(0))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	<-stream.C
	stream.Close()
	if err := stream.Err(); err != nil {
		t.Fatalf("expected no error after Close, got %v", err)
	}
}

func TestCursorTokenEncodesFullPath(t *testing.T) {
	p := Append(New[int, int](10, emitStage(2)), emitStage(2))
	stream, err := p.Execute(context.Background(), "", NewResult(0))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	results, err := stream.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	last := results[len(results)-1]
	token, err := CursorToken(last, p.Stages())
	if err != nil {
		t.Fatalf("CursorToken: %v", err)
	}
	states, err := cursor.Decode(token, p.Stages())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if states[0].OffsetOr(0) != 2 || states[1].OffsetOr(0) != 2 {
		t.Fatalf("unexpected states: %+v", states)
	}
}
