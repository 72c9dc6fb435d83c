package stages

import (
	"fmt"
	"sort"
	"strings"

	"github.com/encodelab/fmripipe/internal/pipeline"
)

// Factory builds one pipeline operation from its evaluated stage options.
// The options map is nil when the stage declares none.
type Factory func(options map[string]any) (pipeline.Operation, error)

// Registry is the closed set of op names a pipeline definition can
// reference.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under an op name. Registering the same name
// twice is a programming error.
func (r *Registry) Register(op string, f Factory) {
	if _, exists := r.factories[op]; exists {
		panic(fmt.Sprintf("stage op %q already registered", op))
	}
	r.factories[op] = f
}

// Resolve builds the operation behind an op name. The signature matches
// pipespec.OpResolver, so a Registry plugs straight into pipeline builds.
func (r *Registry) Resolve(op string, options map[string]any) (pipeline.Operation, error) {
	f, ok := r.factories[op]
	if !ok {
		return nil, fmt.Errorf("unknown op %q (registered: %s)", op, strings.Join(r.Ops(), ", "))
	}
	return f(options)
}

// Ops reports the registered op names in sorted order.
func (r *Registry) Ops() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
