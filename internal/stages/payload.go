package stages

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/encodelab/fmripipe/internal/estimator"
	"github.com/encodelab/fmripipe/internal/pipeline"
)

// Well-known payload keys threaded between stages. X keys hold per-run
// design matrices, Y keys the matching signal matrices, run keys the run
// numbers backing each side of the split.
const (
	KeyXTrain   = "X_train"
	KeyXTest    = "X_test"
	KeyYTrain   = "Y_train"
	KeyYTest    = "Y_test"
	KeyRunTrain = "run_train"
	KeyRunTest  = "run_test"
	KeyNames    = "names"
	KeySaved    = "saved_paths"
)

var reservedKeys = map[string]bool{
	KeyXTrain:   true,
	KeyXTest:    true,
	KeyYTrain:   true,
	KeyYTest:    true,
	KeyRunTrain: true,
	KeyRunTest:  true,
	KeyNames:    true,
	KeySaved:    true,
}

// NewPayload seeds a Compute pass from one cross-validation fold. The Y
// and names keys are set only when the fold carries them.
func NewPayload(fold estimator.Fold) pipeline.Values {
	out := pipeline.Values{
		KeyXTrain:   fold.XTrain,
		KeyXTest:    fold.XTest,
		KeyRunTrain: fold.RunTrain,
		KeyRunTest:  fold.RunTest,
	}
	if fold.YTrain != nil {
		out[KeyYTrain] = fold.YTrain
	}
	if fold.YTest != nil {
		out[KeyYTest] = fold.YTest
	}
	if fold.Names != nil {
		out[KeyNames] = fold.Names
	}
	return out
}

// AsFold reads the fold view back out of a payload. The X and run keys
// are required; Y and names are optional.
func AsFold(in pipeline.Values) (estimator.Fold, error) {
	var fold estimator.Fold
	var err error
	if fold.XTrain, err = matrixList(in, KeyXTrain); err != nil {
		return estimator.Fold{}, err
	}
	if fold.XTest, err = matrixList(in, KeyXTest); err != nil {
		return estimator.Fold{}, err
	}
	if fold.RunTrain, err = runList(in, KeyRunTrain); err != nil {
		return estimator.Fold{}, err
	}
	if fold.RunTest, err = runList(in, KeyRunTest); err != nil {
		return estimator.Fold{}, err
	}
	if fold.YTrain, err = optionalMatrixList(in, KeyYTrain); err != nil {
		return estimator.Fold{}, err
	}
	if fold.YTest, err = optionalMatrixList(in, KeyYTest); err != nil {
		return estimator.Fold{}, err
	}
	if fold.Names, err = optionalNameList(in); err != nil {
		return estimator.Fold{}, err
	}
	return fold, nil
}

// forward copies the incoming payload and applies updates over it, so a
// stage passes through every key it does not produce itself.
func forward(in pipeline.Values, updates pipeline.Values) pipeline.Values {
	out := make(pipeline.Values, len(in)+len(updates))
	for k, v := range in {
		out[k] = v
	}
	for k, v := range updates {
		out[k] = v
	}
	return out
}

func matrixList(in pipeline.Values, key string) ([]*mat.Dense, error) {
	v, ok := in[key]
	if !ok {
		return nil, fmt.Errorf("payload key %q missing", key)
	}
	matrices, ok := v.([]*mat.Dense)
	if !ok {
		return nil, fmt.Errorf("payload key %q holds %T, want []*mat.Dense", key, v)
	}
	return matrices, nil
}

func optionalMatrixList(in pipeline.Values, key string) ([]*mat.Dense, error) {
	if _, ok := in[key]; !ok {
		return nil, nil
	}
	return matrixList(in, key)
}

func runList(in pipeline.Values, key string) ([]int, error) {
	v, ok := in[key]
	if !ok {
		return nil, fmt.Errorf("payload key %q missing", key)
	}
	runs, ok := v.([]int)
	if !ok {
		return nil, fmt.Errorf("payload key %q holds %T, want []int", key, v)
	}
	return runs, nil
}

func nameList(in pipeline.Values) ([]string, error) {
	v, ok := in[KeyNames]
	if !ok {
		return nil, fmt.Errorf("payload key %q missing", KeyNames)
	}
	names, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("payload key %q holds %T, want []string", KeyNames, v)
	}
	return names, nil
}

func optionalNameList(in pipeline.Values) ([]string, error) {
	if _, ok := in[KeyNames]; !ok {
		return nil, nil
	}
	return nameList(in)
}
