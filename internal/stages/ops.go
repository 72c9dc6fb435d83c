package stages

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/encodelab/fmripipe/internal/artifacts"
	"github.com/encodelab/fmripipe/internal/compress"
	"github.com/encodelab/fmripipe/internal/estimator"
	"github.com/encodelab/fmripipe/internal/pipeline"
	"github.com/encodelab/fmripipe/internal/transform"
)

// Deps bundles the collaborators the standard ops close over. A nil
// collaborator makes the ops that need it fail when the pipeline graph is
// built, not mid-compute.
type Deps struct {
	Transformer *transform.Transformer
	Compressor  *compress.Compressor
	Artifacts   *artifacts.Store
	ModelSet    string
	Estimator   estimator.Estimator
}

// Register wires the standard ops into r.
func (d Deps) Register(r *Registry) {
	r.Register("compress", d.compressOp)
	r.Register("scale", d.scaleOp)
	r.Register("make_regressor", d.makeRegressorOp)
	r.Register("estimate", d.estimateOp)
	r.Register("save", d.saveOp)
}

// DefaultRegistry returns a registry holding the standard ops.
func DefaultRegistry(deps Deps) *Registry {
	r := NewRegistry()
	deps.Register(r)
	return r
}

// compressOp applies the per-model compression to both sides of the fold.
func (d Deps) compressOp(options map[string]any) (pipeline.Operation, error) {
	if err := checkOptions("compress", options); err != nil {
		return nil, err
	}
	if d.Compressor == nil {
		return nil, errors.New("compress: no compressor wired")
	}
	return pipeline.OperationFunc(func(ctx context.Context, in pipeline.Values) (pipeline.Values, error) {
		train, test, err := foldMatrices(in)
		if err != nil {
			return nil, fmt.Errorf("compress: %w", err)
		}
		split, err := d.Compressor.Apply(ctx, train, test)
		if err != nil {
			return nil, fmt.Errorf("compress: %w", err)
		}
		return forward(in, pipeline.Values{KeyXTrain: split.Train, KeyXTest: split.Test}), nil
	}), nil
}

// scaleOp dispatches each model's column block to its scaling strategy.
func (d Deps) scaleOp(options map[string]any) (pipeline.Operation, error) {
	if err := checkOptions("scale", options); err != nil {
		return nil, err
	}
	if d.Transformer == nil {
		return nil, errors.New("scale: no transformer wired")
	}
	return pipeline.OperationFunc(func(ctx context.Context, in pipeline.Values) (pipeline.Values, error) {
		train, test, err := foldMatrices(in)
		if err != nil {
			return nil, fmt.Errorf("scale: %w", err)
		}
		split, err := d.Transformer.Scale(ctx, train, test)
		if err != nil {
			return nil, fmt.Errorf("scale: %w", err)
		}
		return forward(in, pipeline.Values{KeyXTrain: split.Train, KeyXTest: split.Test}), nil
	}), nil
}

// makeRegressorOp convolves the fold's feature matrices into design
// matrices and labels their columns.
func (d Deps) makeRegressorOp(options map[string]any) (pipeline.Operation, error) {
	if err := checkOptions("make_regressor", options); err != nil {
		return nil, err
	}
	if d.Transformer == nil {
		return nil, errors.New("make_regressor: no transformer wired")
	}
	return pipeline.OperationFunc(func(ctx context.Context, in pipeline.Values) (pipeline.Values, error) {
		train, test, err := foldMatrices(in)
		if err != nil {
			return nil, fmt.Errorf("make_regressor: %w", err)
		}
		runTrain, err := runList(in, KeyRunTrain)
		if err != nil {
			return nil, fmt.Errorf("make_regressor: %w", err)
		}
		runTest, err := runList(in, KeyRunTest)
		if err != nil {
			return nil, fmt.Errorf("make_regressor: %w", err)
		}
		split, err := d.Transformer.MakeRegressor(ctx, train, test, runTrain, runTest)
		if err != nil {
			return nil, fmt.Errorf("make_regressor: %w", err)
		}
		return forward(in, pipeline.Values{
			KeyXTrain:   split.Train,
			KeyXTest:    split.Test,
			KeyRunTrain: split.RunTrain,
			KeyRunTest:  split.RunTest,
			KeyNames:    split.Names,
		}), nil
	}), nil
}

// estimateOp hands the fold to the wired estimator and merges its results
// into the payload.
func (d Deps) estimateOp(options map[string]any) (pipeline.Operation, error) {
	if err := checkOptions("estimate", options); err != nil {
		return nil, err
	}
	if d.Estimator == nil {
		return nil, errors.New("estimate: no estimator wired")
	}
	return pipeline.OperationFunc(func(ctx context.Context, in pipeline.Values) (pipeline.Values, error) {
		fold, err := AsFold(in)
		if err != nil {
			return nil, fmt.Errorf("estimate: %w", err)
		}
		result, err := d.Estimator.Estimate(ctx, fold)
		if err != nil {
			return nil, fmt.Errorf("estimate: %w", err)
		}
		for key := range result {
			if reservedKeys[key] {
				return nil, fmt.Errorf("estimate: result key %q collides with a payload key", key)
			}
		}
		return forward(in, pipeline.Values(result)), nil
	}), nil
}

// saveOp writes the fold's test-side design matrices as CSV artifacts,
// one per test run. The data option overrides the default artifact name.
func (d Deps) saveOp(options map[string]any) (pipeline.Operation, error) {
	if err := checkOptions("save", options, "data"); err != nil {
		return nil, err
	}
	data, err := stringOption("save", options, "data", "design-matrices")
	if err != nil {
		return nil, err
	}
	if d.Artifacts == nil {
		return nil, errors.New("save: no artifact store wired")
	}
	if d.ModelSet == "" {
		return nil, errors.New("save: no model set name")
	}
	return pipeline.OperationFunc(func(ctx context.Context, in pipeline.Values) (pipeline.Values, error) {
		test, err := matrixList(in, KeyXTest)
		if err != nil {
			return nil, fmt.Errorf("save: %w", err)
		}
		runTest, err := runList(in, KeyRunTest)
		if err != nil {
			return nil, fmt.Errorf("save: %w", err)
		}
		names, err := nameList(in)
		if err != nil {
			return nil, fmt.Errorf("save: %w", err)
		}
		if len(test) != len(runTest) {
			return nil, fmt.Errorf("save: %d matrices for %d test runs", len(test), len(runTest))
		}
		paths := make([]string, len(test))
		for i, m := range test {
			name := fmt.Sprintf("%s_run%d", data, runTest[i])
			path, err := d.Artifacts.SaveMatrix(ctx, d.ModelSet, name, names, m)
			if err != nil {
				return nil, fmt.Errorf("save: %w", err)
			}
			paths[i] = path
		}
		return forward(in, pipeline.Values{KeySaved: paths}), nil
	}), nil
}

func foldMatrices(in pipeline.Values) (train, test []*mat.Dense, err error) {
	if train, err = matrixList(in, KeyXTrain); err != nil {
		return nil, nil, err
	}
	if test, err = matrixList(in, KeyXTest); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

// checkOptions rejects option names outside the known set.
func checkOptions(op string, options map[string]any, known ...string) error {
	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}
	var unknown []string
	for name := range options {
		if !allowed[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("op %q: unsupported option %s", op, strings.Join(unknown, ", "))
}

func stringOption(op string, options map[string]any, key, fallback string) (string, error) {
	v, ok := options[key]
	if !ok {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("op %q: option %q holds %T, want string", op, key, v)
	}
	return s, nil
}
