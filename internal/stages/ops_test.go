package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/encodelab/fmripipe/internal/artifacts"
	"github.com/encodelab/fmripipe/internal/compress"
	"github.com/encodelab/fmripipe/internal/estimator"
	"github.com/encodelab/fmripipe/internal/events"
	"github.com/encodelab/fmripipe/internal/hrf"
	"github.com/encodelab/fmripipe/internal/pipeline"
	"github.com/encodelab/fmripipe/internal/transform"
)

type estimatorFunc func(ctx context.Context, fold estimator.Fold) (estimator.Result, error)

func (f estimatorFunc) Estimate(ctx context.Context, fold estimator.Fold) (estimator.Result, error) {
	return f(ctx, fold)
}

// newTransformer builds a transformer over a disposable events root
// holding three wordrate offsets for runs 1 and 2.
func newTransformer(t *testing.T, scaling transform.ScalingKind) *transform.Transformer {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "english")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, run := range []int{1, 2} {
		path := filepath.Join(dir, fmt.Sprintf("wordrate_run%d.csv", run))
		require.NoError(t, os.WriteFile(path, []byte("offsets\n0.0\n2.0\n4.0\n"), 0o644))
	}

	tf, err := transform.New(transform.Params{
		TR:           2.0,
		NScans:       map[int]int{1: 10, 2: 12},
		Language:     "english",
		HRF:          hrf.SPM,
		Oversampling: 10,
		ScalingAxis:  1,
		WithMean:     true,
		WithStd:      true,
		Models: []transform.ModelSpec{{
			Name:         "wordrate",
			Columns:      []int{0, 1},
			Scaling:      scaling,
			OffsetType:   "wordrate",
			DurationType: "wordrate",
		}},
		Offsets:   events.DirOffsetStore{Root: root},
		Durations: events.DirDurationStore{Root: root},
	})
	require.NoError(t, err)
	return tf
}

func runOp(t *testing.T, r *Registry, op string, options map[string]any, in pipeline.Values) pipeline.Values {
	t.Helper()
	o, err := r.Resolve(op, options)
	require.NoError(t, err)
	out, err := o.Run(context.Background(), in)
	require.NoError(t, err)
	return out
}

func TestDefaultRegistry_Ops(t *testing.T) {
	r := DefaultRegistry(Deps{})
	assert.Equal(t, []string{"compress", "estimate", "make_regressor", "save", "scale"}, r.Ops())
}

func TestRegistry_UnknownOp(t *testing.T) {
	r := DefaultRegistry(Deps{})
	_, err := r.Resolve("ghost", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"ghost"`)
	assert.Contains(t, err.Error(), "make_regressor")
}

func TestRegistry_DuplicateRegistrationPanics(t *testing.T) {
	r := NewRegistry()
	f := func(map[string]any) (pipeline.Operation, error) { return nil, nil }
	r.Register("scale", f)
	assert.Panics(t, func() { r.Register("scale", f) })
}

func TestPayloadRoundTrip(t *testing.T) {
	fold := estimator.Fold{
		XTrain:   []*mat.Dense{mat.NewDense(2, 1, []float64{1, 2})},
		XTest:    []*mat.Dense{mat.NewDense(2, 1, []float64{3, 4})},
		YTrain:   []*mat.Dense{mat.NewDense(2, 1, []float64{5, 6})},
		YTest:    []*mat.Dense{mat.NewDense(2, 1, []float64{7, 8})},
		RunTrain: []int{1, 2},
		RunTest:  []int{3},
		Names:    []string{"wordrate_0"},
	}

	got, err := AsFold(NewPayload(fold))
	require.NoError(t, err)
	assert.Equal(t, fold, got)
}

func TestPayloadWithoutSignals(t *testing.T) {
	fold := estimator.Fold{
		XTrain:   []*mat.Dense{mat.NewDense(1, 1, []float64{1})},
		XTest:    []*mat.Dense{mat.NewDense(1, 1, []float64{2})},
		RunTrain: []int{1},
		RunTest:  []int{2},
	}

	in := NewPayload(fold)
	assert.NotContains(t, in, KeyYTrain)
	assert.NotContains(t, in, KeyNames)

	got, err := AsFold(in)
	require.NoError(t, err)
	assert.Nil(t, got.YTrain)
	assert.Nil(t, got.Names)
}

func TestAsFold_Rejections(t *testing.T) {
	valid := func() pipeline.Values {
		return NewPayload(estimator.Fold{
			XTrain:   []*mat.Dense{mat.NewDense(1, 1, []float64{1})},
			XTest:    []*mat.Dense{mat.NewDense(1, 1, []float64{2})},
			RunTrain: []int{1},
			RunTest:  []int{2},
		})
	}

	missing := valid()
	delete(missing, KeyXTrain)
	_, err := AsFold(missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), KeyXTrain)

	wrongType := valid()
	wrongType[KeyRunTrain] = "1,2"
	_, err = AsFold(wrongType)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want []int")
}

func TestCompressOp_PassesThroughIdentity(t *testing.T) {
	comp, err := compress.New([]compress.ModelSpec{{Name: "wordrate", Columns: []int{0, 1}}})
	require.NoError(t, err)
	r := DefaultRegistry(Deps{Compressor: comp})

	train := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	test := mat.NewDense(2, 2, []float64{7, 8, 9, 10})
	in := NewPayload(estimator.Fold{
		XTrain: []*mat.Dense{train}, XTest: []*mat.Dense{test},
		RunTrain: []int{1}, RunTest: []int{2},
	})

	out := runOp(t, r, "compress", nil, in)
	gotTrain, err := matrixList(out, KeyXTrain)
	require.NoError(t, err)
	assert.True(t, mat.Equal(train, gotTrain[0]))
	assert.Equal(t, []int{1}, out[KeyRunTrain])
}

func TestCompressOp_NotWired(t *testing.T) {
	r := DefaultRegistry(Deps{})
	_, err := r.Resolve("compress", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no compressor wired")
}

func TestScaleOp_StandardizesColumns(t *testing.T) {
	r := DefaultRegistry(Deps{Transformer: newTransformer(t, transform.ScaleStandardize)})

	train := mat.NewDense(4, 2, []float64{1, 10, 2, 20, 3, 30, 4, 40})
	test := mat.NewDense(4, 2, []float64{5, 50, 6, 60, 7, 70, 8, 80})
	in := NewPayload(estimator.Fold{
		XTrain: []*mat.Dense{train}, XTest: []*mat.Dense{test},
		RunTrain: []int{1}, RunTest: []int{2},
	})

	out := runOp(t, r, "scale", nil, in)
	gotTrain, err := matrixList(out, KeyXTrain)
	require.NoError(t, err)
	for j := 0; j < 2; j++ {
		var sum float64
		for i := 0; i < 4; i++ {
			sum += gotTrain[0].At(i, j)
		}
		assert.InDelta(t, 0, sum/4, 1e-12)
	}
}

func TestMakeRegressorOp_BuildsDesignMatrices(t *testing.T) {
	r := DefaultRegistry(Deps{Transformer: newTransformer(t, transform.ScaleIdentity)})

	train := mat.NewDense(3, 2, []float64{1, 2, 1, 3, 1, 4})
	test := mat.NewDense(3, 2, []float64{1, 5, 1, 6, 1, 7})
	in := NewPayload(estimator.Fold{
		XTrain: []*mat.Dense{train}, XTest: []*mat.Dense{test},
		RunTrain: []int{1}, RunTest: []int{2},
	})

	out := runOp(t, r, "make_regressor", nil, in)
	gotTrain, err := matrixList(out, KeyXTrain)
	require.NoError(t, err)
	gotTest, err := matrixList(out, KeyXTest)
	require.NoError(t, err)

	rows, cols := gotTrain[0].Dims()
	assert.Equal(t, 10, rows)
	assert.Equal(t, 2, cols)
	rows, _ = gotTest[0].Dims()
	assert.Equal(t, 12, rows)

	assert.Equal(t, []int{1}, out[KeyRunTrain])
	assert.Equal(t, []int{2}, out[KeyRunTest])
	assert.Equal(t, []string{"wordrate_0", "wordrate_1"}, out[KeyNames])
}

func TestEstimateOp_MergesResults(t *testing.T) {
	var seen estimator.Fold
	fake := estimatorFunc(func(_ context.Context, fold estimator.Fold) (estimator.Result, error) {
		seen = fold
		return estimator.Result{"r2": 0.9}, nil
	})
	r := DefaultRegistry(Deps{Estimator: fake})

	in := NewPayload(estimator.Fold{
		XTrain:   []*mat.Dense{mat.NewDense(1, 1, []float64{1})},
		XTest:    []*mat.Dense{mat.NewDense(1, 1, []float64{2})},
		YTrain:   []*mat.Dense{mat.NewDense(1, 1, []float64{3})},
		YTest:    []*mat.Dense{mat.NewDense(1, 1, []float64{4})},
		RunTrain: []int{1},
		RunTest:  []int{2},
	})

	out := runOp(t, r, "estimate", nil, in)
	assert.Equal(t, 0.9, out["r2"])
	assert.Equal(t, in[KeyXTrain], out[KeyXTrain])
	assert.Equal(t, []int{2}, seen.RunTest)
	require.Len(t, seen.YTrain, 1)
}

func TestEstimateOp_ReservedResultKey(t *testing.T) {
	fake := estimatorFunc(func(context.Context, estimator.Fold) (estimator.Result, error) {
		return estimator.Result{KeyXTrain: 1}, nil
	})
	r := DefaultRegistry(Deps{Estimator: fake})

	op, err := r.Resolve("estimate", nil)
	require.NoError(t, err)
	in := NewPayload(estimator.Fold{
		XTrain:   []*mat.Dense{mat.NewDense(1, 1, []float64{1})},
		XTest:    []*mat.Dense{mat.NewDense(1, 1, []float64{2})},
		RunTrain: []int{1},
		RunTest:  []int{2},
	})
	_, err = op.Run(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collides")
}

func TestEstimateOp_NotWired(t *testing.T) {
	r := DefaultRegistry(Deps{})
	_, err := r.Resolve("estimate", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no estimator wired")
}

func TestSaveOp_WritesTestMatrices(t *testing.T) {
	store := artifacts.Store{Root: t.TempDir(), Language: "english", Subject: "sub-057"}
	r := DefaultRegistry(Deps{Artifacts: &store, ModelSet: "glove_lstm"})

	in := NewPayload(estimator.Fold{
		XTrain:   []*mat.Dense{mat.NewDense(1, 2, []float64{0, 0})},
		XTest:    []*mat.Dense{mat.NewDense(2, 2, []float64{1, 2, 3, 4}), mat.NewDense(2, 2, []float64{5, 6, 7, 8})},
		RunTrain: []int{1},
		RunTest:  []int{3, 7},
		Names:    []string{"wordrate_0", "wordrate_1"},
	})

	out := runOp(t, r, "save", nil, in)
	paths, ok := out[KeySaved].([]string)
	require.True(t, ok)
	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], "sub-057_glove_lstm_design-matrices_run3.csv")
	assert.Contains(t, paths[1], "design-matrices_run7.csv")
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestSaveOp_DataOption(t *testing.T) {
	store := artifacts.Store{Root: t.TempDir(), Language: "english", Subject: "sub-057"}
	r := DefaultRegistry(Deps{Artifacts: &store, ModelSet: "glove"})

	in := NewPayload(estimator.Fold{
		XTrain:   []*mat.Dense{mat.NewDense(1, 1, []float64{0})},
		XTest:    []*mat.Dense{mat.NewDense(1, 1, []float64{1})},
		RunTrain: []int{1},
		RunTest:  []int{2},
		Names:    []string{"wordrate_0"},
	})

	out := runOp(t, r, "save", map[string]any{"data": "scores"}, in)
	paths := out[KeySaved].([]string)
	require.Len(t, paths, 1)
	assert.Contains(t, paths[0], "sub-057_glove_scores_run2.csv")
}

func TestSaveOp_UnsupportedOption(t *testing.T) {
	store := artifacts.Store{Root: t.TempDir(), Language: "english", Subject: "sub-057"}
	r := DefaultRegistry(Deps{Artifacts: &store, ModelSet: "glove"})

	_, err := r.Resolve("save", map[string]any{"format": "npy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported option format")
}

func TestSaveOp_NeedsColumnNames(t *testing.T) {
	store := artifacts.Store{Root: t.TempDir(), Language: "english", Subject: "sub-057"}
	r := DefaultRegistry(Deps{Artifacts: &store, ModelSet: "glove"})

	op, err := r.Resolve("save", nil)
	require.NoError(t, err)
	in := NewPayload(estimator.Fold{
		XTrain:   []*mat.Dense{mat.NewDense(1, 1, []float64{0})},
		XTest:    []*mat.Dense{mat.NewDense(1, 1, []float64{1})},
		RunTrain: []int{1},
		RunTest:  []int{2},
	})
	_, err = op.Run(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"names"`)
}
