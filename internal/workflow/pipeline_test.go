package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func collect(t *testing.T, p *Pipeline, ctx context.Context, request string) ([]Update, error) {
	t.Helper()
	var updates []Update
	for u, err := range p.Run(ctx, request) {
		if err != nil {
			return updates, err
		}
		updates = append(updates, u)
	}
	return updates, nil
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mk := func(id string) Stage {
		return Stage{ID: id, Name: id, Run: func(_ context.Context, input string, emit func(string)) (string, error) {
			order = append(order, id)
			emit(id + " working")
			return input + "|" + id, nil
		}}
	}

	p, err := NewPipeline(nil, mk("a"), mk("b"), mk("c"))
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	updates, err := collect(t, p, context.Background(), "req")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := strings.Join(order, ","); got != "a,b,c" {
		t.Errorf("Expected stage order a,b,c, got %s", got)
	}

	last := updates[len(updates)-1]
	if !last.Final {
		t.Fatal("Expected final update")
	}
	if last.Result != "req|a|b|c" {
		t.Errorf("Unexpected result: %q", last.Result)
	}
	for _, u := range updates[:len(updates)-1] {
		if u.Final {
			t.Error("Final update emitted before the end")
		}
	}
}

func TestPipelineStageFailureTerminatesSequence(t *testing.T) {
	t.Parallel()

	boom := errors.New("database connection lost")
	ok := Stage{ID: "ok", Name: "ok", Run: func(_ context.Context, input string, _ func(string)) (string, error) {
		return input, nil
	}}
	bad := Stage{ID: "bad", Name: "bad", Run: func(_ context.Context, _ string, _ func(string)) (string, error) {
		return "", boom
	}}
	never := Stage{ID: "never", Name: "never", Run: func(_ context.Context, _ string, _ func(string)) (string, error) {
		t.Error("stage after failure must not run")
		return "", nil
	}}

	p, err := NewPipeline(nil, ok, bad, never)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	updates, runErr := collect(t, p, context.Background(), "req")
	if !errors.Is(runErr, boom) {
		t.Fatalf("Expected wrapped stage error, got %v", runErr)
	}
	for _, u := range updates {
		if u.Final {
			t.Error("No final update expected after a failure")
		}
	}
}

func TestPipelineObservesCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	first := Stage{ID: "first", Name: "first", Run: func(_ context.Context, input string, _ func(string)) (string, error) {
		cancel() // client disconnects mid-run
		return input, nil
	}}
	second := Stage{ID: "second", Name: "second", Run: func(_ context.Context, _ string, _ func(string)) (string, error) {
		t.Error("stage must not run after cancellation")
		return "", nil
	}}

	p, err := NewPipeline(nil, first, second)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	_, runErr := collect(t, p, ctx, "req")
	if !errors.Is(runErr, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", runErr)
	}
}

func TestPipelineStopsWhenConsumerBreaks(t *testing.T) {
	t.Parallel()

	emitted := 0
	chatty := Stage{ID: "chatty", Name: "chatty", Run: func(ctx context.Context, input string, emit func(string)) (string, error) {
		for i := 0; i < 100; i++ {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			emit("event")
			emitted++
		}
		return input, nil
	}}

	p, err := NewPipeline(nil, chatty)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	seen := 0
	for _, err := range p.Run(context.Background(), "req") {
		if err != nil {
			break
		}
		seen++
		if seen == 3 {
			break
		}
	}
	if emitted >= 100 {
		t.Errorf("Expected stage to stop early, emitted %d events", emitted)
	}
}

func TestNewPipelineRequiresStages(t *testing.T) {
	t.Parallel()

	if _, err := NewPipeline(nil); !errors.Is(err, ErrNoStages) {
		t.Fatalf("Expected ErrNoStages, got %v", err)
	}
}
