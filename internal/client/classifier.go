// Package client provides a Go consumer for the streaming gateway: a
// WebSocket client that runs one workflow request end to end, and a progress
// classifier that maps the event stream onto fixed display steps.
package client

import (
	"strings"

	"github.com/gloveboxes/popupstore-agent-gateway/internal/protocol"
)

// Status is the display state of one progress step.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Step is one entry in the fixed progress sequence. Detail holds the last
// event text classified onto the step, or the failure message for an errored
// step.
type Step struct {
	Label  string
	Detail string
	Status Status
}

// stepRule matches event text onto a step by keyword. Matching is
// case-insensitive substring containment.
type stepRule struct {
	label    string
	keywords []string
}

// The step sequence is fixed for the inventory workflow. Step 0 has no
// keywords: it completes as soon as the run starts, which also activates
// step 1.
var inventoryRules = []stepRule{
	{label: "Starting Analysis"},
	{label: "Analyzing Inventory", keywords: []string{"inventory", "stock", "department"}},
	{label: "Checking Policies", keywords: []string{"policy", "budget", "finance"}},
	{label: "Generating Recommendations", keywords: []string{"recommend", "summary", "priority"}},
}

// Classifier folds a stream of envelopes into step statuses. Progress is
// monotonic: a step never moves backwards, and an event matching an earlier
// step than the active one only refreshes that step's detail text.
type Classifier struct {
	rules  []stepRule
	steps  []Step
	active int
	failed bool
}

// NewClassifier returns a classifier over the fixed inventory steps, all
// pending.
func NewClassifier() *Classifier {
	steps := make([]Step, len(inventoryRules))
	for i, r := range inventoryRules {
		steps[i] = Step{Label: r.label, Status: StatusPending}
	}
	return &Classifier{rules: inventoryRules, steps: steps, active: -1}
}

// Steps returns a copy of the current step states.
func (c *Classifier) Steps() []Step {
	out := make([]Step, len(c.steps))
	copy(out, c.steps)
	return out
}

// Apply folds one envelope into the step states.
func (c *Classifier) Apply(env protocol.Envelope) {
	if c.failed {
		return
	}
	switch env.Type {
	case protocol.TypeStarted:
		c.advance(1)
	case protocol.TypeEvent:
		idx := c.classify(env.Payload)
		if idx < 0 {
			return
		}
		if idx > c.active {
			c.advance(idx)
		}
		if idx >= c.active {
			c.steps[idx].Detail = env.Payload
		}
	case protocol.TypeCompleted:
		for i := range c.steps {
			if c.steps[i].Status != StatusError {
				c.steps[i].Status = StatusComplete
			}
		}
		c.active = len(c.steps) - 1
	case protocol.TypeError:
		c.fail(env.Payload)
	}
}

// classify returns the highest-indexed step whose keywords match the event
// text, or -1 when nothing matches. Taking the highest match keeps progress
// moving forward when an event mentions vocabulary from several steps.
func (c *Classifier) classify(text string) int {
	lower := strings.ToLower(text)
	match := -1
	for i, r := range c.rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				match = i
				break
			}
		}
	}
	return match
}

// advance marks every step before idx complete and idx active.
func (c *Classifier) advance(idx int) {
	if idx >= len(c.steps) {
		idx = len(c.steps) - 1
	}
	for i := 0; i < idx; i++ {
		c.steps[i].Status = StatusComplete
	}
	c.steps[idx].Status = StatusActive
	c.active = idx
}

// fail marks the active step errored, leaving later steps pending. When the
// run dies before anything started, the first step carries the error.
func (c *Classifier) fail(message string) {
	c.failed = true
	idx := c.active
	if idx < 0 {
		idx = 0
	}
	c.steps[idx].Status = StatusError
	c.steps[idx].Detail = message
}
