package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycle is reported by Fit when the dependency graph contains a
	// directed cycle. Use errors.Is to detect it; the concrete error is a
	// *CycleError carrying the offending path.
	ErrCycle = errors.New("dependency cycle detected")

	// ErrMissingDependency is reported by Fit when a reachable task depends
	// on a task that is not reachable from the root, which would leave the
	// dependent without an input at compute time.
	ErrMissingDependency = errors.New("dependency outside pipeline")
)

// CycleError describes one directed cycle found in the task graph. Path
// holds the stage names along the cycle, with the first name repeated at
// the end.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycle, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }
