// Package splitter produces leave-k-runs-out cross-validation folds over
// acquisition runs. Each fold holds out one consecutive group of runs as
// the test set and trains on all remaining runs, so every run serves as
// test data exactly once across the folds.
package splitter

import (
	"fmt"
)

// Fold is one cross-validation split of the run list.
type Fold struct {
	Train []int
	Test  []int
}

// Split partitions runs into consecutive test groups of outPerFold runs
// (the final group may be smaller) and pairs each group with the remaining
// runs as its training set. Run order is preserved within both sides of
// every fold.
func Split(runs []int, outPerFold int) ([]Fold, error) {
	if outPerFold < 1 {
		return nil, fmt.Errorf("splitter: need at least one held-out run per fold, got %d", outPerFold)
	}
	if len(runs) < 2 {
		return nil, fmt.Errorf("splitter: need at least two runs to split, got %d", len(runs))
	}
	if outPerFold >= len(runs) {
		return nil, fmt.Errorf("splitter: holding out %d of %d runs leaves nothing to train on",
			outPerFold, len(runs))
	}

	n := len(runs)
	folds := make([]Fold, 0, (n+outPerFold-1)/outPerFold)
	for start := 0; start < n; start += outPerFold {
		end := min(start+outPerFold, n)
		test := make([]int, end-start)
		copy(test, runs[start:end])
		train := make([]int, 0, n-(end-start))
		train = append(train, runs[:start]...)
		train = append(train, runs[end:]...)
		folds = append(folds, Fold{Train: train, Test: test})
	}
	return folds, nil
}
