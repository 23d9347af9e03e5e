package workflow

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
)

// ErrNoStages is returned when a pipeline is built without any stages.
var ErrNoStages = errors.New("pipeline has no stages")

// StageFunc runs one pipeline stage. It receives the previous stage's output
// as input, may emit any number of intermediate events through emit, and
// returns the text handed to the next stage. When the consumer stops pulling
// events, ctx is cancelled; stages are expected to observe it.
type StageFunc func(ctx context.Context, input string, emit func(text string)) (string, error)

// Stage is one step of a pipeline.
type Stage struct {
	// ID is a stable identifier included in stage framing events.
	ID string
	// Name is the human-readable stage description.
	Name string
	// Run executes the stage.
	Run StageFunc
}

// Pipeline chains stages sequentially, each stage's output feeding the next.
// The last stage's output becomes the run's final result. Pipeline is the
// production Runner; every session gets its own instance via a Factory.
type Pipeline struct {
	stages []Stage
	logger *slog.Logger
}

// NewPipeline builds a pipeline from the given stages.
func NewPipeline(logger *slog.Logger, stages ...Stage) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{stages: stages, logger: logger}, nil
}

// Run executes the stages in order, yielding stage framing events, every
// stage-emitted event, and finally a Final update carrying the last stage's
// output. A stage failure terminates the sequence with an error.
func (p *Pipeline) Run(ctx context.Context, requestText string) iter.Seq2[Update, error] {
	return func(yield func(Update, error) bool) {
		input := requestText
		for _, st := range p.stages {
			if err := ctx.Err(); err != nil {
				yield(Update{Stage: st.ID}, err)
				return
			}
			if !yield(Update{Stage: st.ID, Event: fmt.Sprintf("executor %s invoked: %s", st.ID, st.Name)}, nil) {
				return
			}

			// A standalone cancel lets an emit that the consumer rejected
			// stop the in-flight stage as well.
			stageCtx, cancel := context.WithCancel(ctx)
			stopped := false
			emit := func(text string) {
				if stopped {
					return
				}
				if !yield(Update{Stage: st.ID, Event: text}, nil) {
					stopped = true
					cancel()
				}
			}

			output, err := st.Run(stageCtx, input, emit)
			cancel()
			if stopped {
				return
			}
			if err != nil {
				p.logger.Warn("Pipeline stage failed", "stage", st.ID, "error", err)
				yield(Update{Stage: st.ID}, fmt.Errorf("stage %s: %w", st.ID, err))
				return
			}
			if !yield(Update{Stage: st.ID, Event: fmt.Sprintf("executor %s completed", st.ID)}, nil) {
				return
			}
			input = output
		}

		yield(Update{Result: input, Final: true}, nil)
	}
}
