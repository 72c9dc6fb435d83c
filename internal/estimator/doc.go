// Package estimator defines the hand-off boundary between the data
// preparation pipeline and model fitting. The pipeline produces one Fold
// per cross-validation split and passes it to an Estimator; nothing the
// estimator computes feeds back into the transformation logic.
//
// No estimator ships with this module. Callers plug in their own
// implementation when assembling the stage registry.
package estimator
