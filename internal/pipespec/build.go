package pipespec

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/encodelab/fmripipe/internal/ctxlog"
	"github.com/encodelab/fmripipe/internal/pipeline"
)

// OpResolver produces the operation behind an op name. The options map
// carries the stage's evaluated options attributes, nil when the stage
// declares none.
type OpResolver func(op string, options map[string]any) (pipeline.Operation, error)

// Build wires the declared stages into an executable task graph and
// returns its root: the single stage that depends on nothing. Every op
// name is resolved here, so a misconfigured stage fails before anything
// runs. Option expressions are evaluated against vars, so a stage can
// reference experiment parameters instead of repeating literals; nil is
// fine when every option is a literal.
func (p *Pipeline) Build(ctx context.Context, vars map[string]cty.Value, resolve OpResolver) (*pipeline.Task, error) {
	if resolve == nil {
		return nil, errors.New("nil op resolver")
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", p.Name, err)
	}

	evalCtx := &hcl.EvalContext{Variables: vars}
	tasks := make(map[string]*pipeline.Task, len(p.Stages))
	for _, s := range p.Stages {
		opts, err := s.options(evalCtx)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", s.Name, err)
		}
		op, err := resolve(s.Op, opts)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", s.Name, err)
		}
		tasks[s.Name] = pipeline.NewTask(s.Name, op)
	}

	var roots []string
	for _, s := range p.Stages {
		for _, dep := range s.DependsOn {
			tasks[s.Name].AddInputDependency(tasks[dep])
		}
		if len(s.DependsOn) == 0 {
			roots = append(roots, s.Name)
		}
	}
	if len(roots) != 1 {
		return nil, fmt.Errorf("pipeline %q needs exactly one root stage, got %v", p.Name, roots)
	}
	root := tasks[roots[0]]
	if missing := firstUnreachable(root, p.Stages, tasks); missing != "" {
		return nil, fmt.Errorf("pipeline %q: stage %q is not reachable from root %q",
			p.Name, missing, roots[0])
	}

	ctxlog.FromContext(ctx).Debug("pipeline graph built",
		"pipeline", p.Name, "stages", len(p.Stages), "root", roots[0])
	return root, nil
}

// options evaluates the stage's options block into plain Go values.
func (s *Stage) options(evalCtx *hcl.EvalContext) (map[string]any, error) {
	if s.Options == nil || s.Options.Body == nil {
		return nil, nil
	}
	attrs, diags := s.Options.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("reading options: %w", diags)
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("evaluating option %q: %w", name, diags)
		}
		goVal, err := ctyToGo(val)
		if err != nil {
			return nil, fmt.Errorf("option %q: %w", name, err)
		}
		out[name] = goVal
	}
	return out, nil
}

// firstUnreachable walks the graph from root and names a stage the walk
// never visits, or returns the empty string when every stage is covered.
// A stage can be unreachable despite the single-root rule when a
// dependency cycle isolates it from the root.
func firstUnreachable(root *pipeline.Task, stages []*Stage, tasks map[string]*pipeline.Task) string {
	visited := make(map[*pipeline.Task]bool, len(tasks))
	queue := []*pipeline.Task{root}
	visited[root] = true
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		for _, child := range t.Children() {
			if !visited[child] {
				visited[child] = true
				queue = append(queue, child)
			}
		}
	}
	for _, s := range stages {
		if !visited[tasks[s.Name]] {
			return s.Name
		}
	}
	return ""
}
