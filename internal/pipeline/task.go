package pipeline

import (
	"context"
	"fmt"
)

// Values carries the named intermediate results threaded between pipeline
// stages. Well-known keys (feature matrices, run splits) are defined by the
// packages that produce and consume them; the scheduler treats the payload
// as opaque.
type Values map[string]any

// merged returns a new Values built by merging the given payloads in order.
// Later payloads overwrite earlier ones on key collisions.
func merged(payloads ...Values) Values {
	out := make(Values)
	for _, p := range payloads {
		for k, v := range p {
			out[k] = v
		}
	}
	return out
}

// Operation is the unit of work a Task wraps. It receives the merged outputs
// of the task's parents and returns the task's own named outputs.
type Operation interface {
	Run(ctx context.Context, in Values) (Values, error)
}

// OperationFunc adapts an ordinary function to the Operation interface.
type OperationFunc func(ctx context.Context, in Values) (Values, error)

// Run implements Operation.
func (f OperationFunc) Run(ctx context.Context, in Values) (Values, error) {
	return f(ctx, in)
}

// Task is a named node in the dependency graph. Parent links declare input
// dependencies; child links are the reverse references used by Fit to walk
// the graph downstream from the root.
//
// Tasks are created once per pipeline stage and may be reused across
// repeated Fit/Compute passes: they hold no execution state.
type Task struct {
	name     string
	op       Operation
	parents  []*Task
	children []*Task
}

// NewTask creates a task for the given stage name and operation. It panics
// on an empty name or nil operation: both are programmer errors in the
// pipeline-definition layer, not runtime conditions.
func NewTask(name string, op Operation) *Task {
	if name == "" {
		panic("pipeline: task name must not be empty")
	}
	if op == nil {
		panic(fmt.Sprintf("pipeline: task %q has no operation", name))
	}
	return &Task{name: name, op: op}
}

// Name returns the task's unique stage name.
func (t *Task) Name() string { return t.name }

// Parents returns the task's input dependencies in registration order.
func (t *Task) Parents() []*Task {
	out := make([]*Task, len(t.parents))
	copy(out, t.parents)
	return out
}

// Children returns the tasks that depend on this task, in the order the
// dependencies were registered.
func (t *Task) Children() []*Task {
	out := make([]*Task, len(t.children))
	copy(out, t.children)
	return out
}

// AddInputDependency registers parent as an input dependency of t and t as a
// child of parent. Registering the same pair repeatedly is a no-op, so
// wiring code may be applied idempotently.
func (t *Task) AddInputDependency(parent *Task) {
	if parent == nil {
		return
	}
	for _, p := range t.parents {
		if p == parent {
			return
		}
	}
	t.parents = append(t.parents, parent)
	parent.children = append(parent.children, t)
}
