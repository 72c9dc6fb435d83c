// Package pipeline provides the task-graph scheduler for the encoding
// analysis. Callers construct Task nodes around operations, wire them with
// AddInputDependency, and hand the root to a Pipeline: Fit derives a valid
// execution order from the dependency structure, Compute runs the tasks in
// that order while threading each stage's output into its dependents.
//
// Fitting is a pure ordering pass: it never invokes operations, so a dry-run
// of the stage order is always safe. Execution state lives in a per-Compute
// results map, never on the tasks themselves, which keeps repeated
// Fit/Compute passes over the same task objects free of cross-run leakage.
package pipeline
