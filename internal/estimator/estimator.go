package estimator

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Fold is one cross-validation split's worth of prepared data. XTrain and
// XTest hold per-run design matrices; YTrain and YTest hold the matching
// signal matrices when the experiment loaded any, and are nil otherwise.
// RunTrain and RunTest name the runs backing each side, and Names labels
// the design-matrix columns shared by every run.
type Fold struct {
	XTrain   []*mat.Dense
	XTest    []*mat.Dense
	YTrain   []*mat.Dense
	YTest    []*mat.Dense
	RunTrain []int
	RunTest  []int
	Names    []string
}

// Result carries whatever an estimator computed for one fold, keyed by
// output name. Keys are merged into the pipeline payload downstream, so
// implementations should pick names that do not collide with the
// reserved payload keys.
type Result map[string]any

// Estimator fits and evaluates a model on one fold.
type Estimator interface {
	Estimate(ctx context.Context, fold Fold) (Result, error)
}
