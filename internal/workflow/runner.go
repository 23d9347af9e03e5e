// Package workflow defines the runner interface the gateway drives and the
// staged pipeline that implements the inventory analysis workflow.
package workflow

import (
	"context"
	"iter"
)

// Update is a single item yielded by a Runner: either an intermediate domain
// event or, exactly once at the end of a successful run, the final result.
type Update struct {
	// Stage identifies the producing pipeline stage; may be empty.
	Stage string
	// Event is opaque free text describing workflow progress. Consumers must
	// not assume any sub-schema.
	Event string
	// Result holds the Markdown-formatted final payload when Final is set.
	Result string
	// Final marks the last update of a successful run.
	Final bool
}

// Runner produces the lazy, ordered event sequence for one analysis request.
// The sequence terminates either with a Final update or with a non-nil error;
// cancelling ctx stops production promptly.
type Runner interface {
	Run(ctx context.Context, requestText string) iter.Seq2[Update, error]
}

// Factory builds an independent Runner for each session. Sessions never share
// a Runner instance, so cancelling one run cannot affect another.
type Factory func() Runner
