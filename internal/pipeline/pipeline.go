package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/encodelab/fmripipe/internal/ctxlog"
)

// Pipeline schedules and runs a task graph in two phases. Fit walks the
// graph downstream from a root task and freezes a dependency-respecting
// execution order; Compute executes that order, feeding each task the
// merged outputs of its parents.
type Pipeline struct {
	order []*Task
}

// New returns an empty, unfitted pipeline.
func New() *Pipeline { return &Pipeline{} }

// Fit resolves the execution order for the graph reachable from root. It
// never invokes task operations, so fitting is always side-effect free. A
// nil root, a dependency pointing outside the reachable graph, or a
// dependency cycle fail the fit and leave the pipeline unfitted.
func (p *Pipeline) Fit(ctx context.Context, root *Task) error {
	if root == nil {
		return errors.New("fit requires a root task")
	}
	order, err := fitOrder(root)
	if err != nil {
		p.order = nil
		return fmt.Errorf("fitting pipeline at %q: %w", root.Name(), err)
	}
	p.order = order
	ctxlog.FromContext(ctx).Debug("pipeline fitted", "root", root.Name(), "stages", len(order))
	return nil
}

// Fitted reports whether a successful Fit has frozen an execution order.
func (p *Pipeline) Fitted() bool { return len(p.order) > 0 }

// Order reports the stage names in fitted execution order, or nil when the
// pipeline has not been fitted.
func (p *Pipeline) Order() []string {
	if p.order == nil {
		return nil
	}
	names := make([]string, len(p.order))
	for i, t := range p.order {
		names[i] = t.Name()
	}
	return names
}

// Compute runs the fitted stages in order. The initial payload is handed to
// the root stage; every later stage receives the merged outputs of its
// parents, with later-registered parents overwriting earlier ones on key
// collisions. Compute returns the output of the final stage in the fitted
// order.
//
// All execution state lives in this call's local results map, so the same
// fitted pipeline can be computed repeatedly, each pass independent of the
// previous one. Calling Compute on an unfitted pipeline executes nothing
// and returns nil results.
func (p *Pipeline) Compute(ctx context.Context, initial Values) (Values, error) {
	log := ctxlog.FromContext(ctx)
	if len(p.order) == 0 {
		log.Warn("compute called on an unfitted pipeline, nothing to run")
		return nil, nil
	}

	outputs := make(map[*Task]Values, len(p.order))
	var last Values
	for i, t := range p.order {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pipeline interrupted before stage %q: %w", t.Name(), err)
		}

		var in Values
		if i == 0 {
			in = merged(initial)
		} else {
			payloads := make([]Values, 0, len(t.parents))
			for _, parent := range t.parents {
				payloads = append(payloads, outputs[parent])
			}
			in = merged(payloads...)
		}

		log.Debug("running stage", "index", i, "stage", t.Name())
		out, err := t.op.Run(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", t.Name(), err)
		}
		outputs[t] = out
		last = out
	}

	log.Debug("pipeline compute finished", "stages", len(p.order))
	return last, nil
}
