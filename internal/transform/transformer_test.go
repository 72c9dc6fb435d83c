package transform

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/encodelab/fmripipe/internal/events"
	"github.com/encodelab/fmripipe/internal/hrf"
)

// stubOffsets serves the same offsets for every offset type and language,
// keyed by run.
type stubOffsets map[int][]float64

func (s stubOffsets) Offsets(_ context.Context, offsetType string, run int, language string) ([]float64, error) {
	if v, ok := s[run]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no offsets at stub/%s/%s_run%d.csv: %w",
		language, offsetType, run, events.ErrOffsetsNotFound)
}

// stubDurations serves recorded durations keyed by run, defaulting to unit
// durations like the real store.
type stubDurations map[int][]float64

func (s stubDurations) Durations(_ context.Context, _ string, run int, defaultSize int) ([]float64, error) {
	if v, ok := s[run]; ok {
		return v, nil
	}
	ones := make([]float64, defaultSize)
	for i := range ones {
		ones[i] = 1
	}
	return ones, nil
}

func testParams(models []ModelSpec, offsets events.OffsetStore, durations events.DurationStore) Params {
	return Params{
		TR:           2.0,
		NScans:       map[int]int{1: 100, 2: 120},
		Language:     "english",
		HRF:          hrf.SPM,
		Oversampling: 10,
		ScalingAxis:  1,
		WithMean:     true,
		WithStd:      true,
		Models:       models,
		Offsets:      offsets,
		Durations:    durations,
	}
}

func oneModel(columns ...int) []ModelSpec {
	return []ModelSpec{{
		Name:       "m",
		Columns:    columns,
		Scaling:    ScaleIdentity,
		OffsetType: "word",
	}}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	offsets := stubOffsets{}
	durations := stubDurations{}

	cases := map[string]func(p *Params){
		"zero tr":             func(p *Params) { p.TR = 0 },
		"zero oversampling":   func(p *Params) { p.Oversampling = 0 },
		"bad axis":            func(p *Params) { p.ScalingAxis = 2 },
		"no models":           func(p *Params) { p.Models = nil },
		"no offset store":     func(p *Params) { p.Offsets = nil },
		"no duration store":   func(p *Params) { p.Durations = nil },
		"no scan counts":      func(p *Params) { p.NScans = nil },
		"one-scan run":        func(p *Params) { p.NScans = map[int]int{1: 1} },
		"unknown hrf model":   func(p *Params) { p.HRF = "fir" },
		"unknown scaling":     func(p *Params) { p.Models[0].Scaling = "whiten" },
		"empty column set":    func(p *Params) { p.Models[0].Columns = nil },
		"column out of range": func(p *Params) { p.Models[0].Columns = []int{0, 3} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := testParams(oneModel(0, 1), offsets, durations)
			mutate(&p)
			_, err := New(p)
			assert.Error(t, err)
		})
	}

	t.Run("overlapping columns", func(t *testing.T) {
		models := []ModelSpec{
			{Name: "a", Columns: []int{0, 1}, OffsetType: "word"},
			{Name: "b", Columns: []int{1, 2}, OffsetType: "word"},
		}
		_, err := New(testParams(models, offsets, durations))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "column 1")
	})
}

func TestScale_DispatchesPerModelAndConcatenates(t *testing.T) {
	models := []ModelSpec{
		{Name: "raw", Columns: []int{0}, Scaling: ScaleIdentity, OffsetType: "word"},
		{Name: "deep", Columns: []int{1, 2}, Scaling: ScaleStandardize, OffsetType: "word"},
	}
	tf, err := New(testParams(models, stubOffsets{}, stubDurations{}))
	require.NoError(t, err)

	train := []*mat.Dense{mat.NewDense(4, 3, []float64{
		7, 1, 10,
		8, 2, 20,
		9, 3, 30,
		10, 4, 40,
	})}
	test := []*mat.Dense{mat.NewDense(4, 3, []float64{
		-1, 100, 1000,
		-2, 200, 2000,
		-3, 300, 3000,
		-4, 400, 4000,
	})}

	out, err := tf.Scale(context.Background(), train, test)
	require.NoError(t, err)
	require.Len(t, out.Train, 1)
	require.Len(t, out.Test, 1)

	rows, cols := out.Train[0].Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 3, cols)

	// Identity block passes through untouched.
	for i := 0; i < 4; i++ {
		assert.Equal(t, train[0].At(i, 0), out.Train[0].At(i, 0))
	}

	// Standardized blocks have zero mean and unit population variance.
	for j := 1; j < 3; j++ {
		mean, popVar := colStats(t, out.Train[0], j)
		assert.InDelta(t, 0, mean, 1e-12)
		assert.InDelta(t, 1, popVar, 1e-9)
	}

	// Each matrix supplies its own statistics: train and test columns with
	// proportional raw values standardize to identical outputs.
	for i := 0; i < 4; i++ {
		assert.InDelta(t, out.Train[0].At(i, 1), out.Test[0].At(i, 1), 1e-12, "row %d", i)
	}
}

func TestScale_RejectsWrongWidth(t *testing.T) {
	tf, err := New(testParams(oneModel(0, 1), stubOffsets{}, stubDurations{}))
	require.NoError(t, err)

	_, err = tf.Scale(context.Background(), []*mat.Dense{mat.NewDense(3, 4, nil)}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "columns")
}

func eventMatrix(rows, cols int, fill func(i, j int) float64) *mat.Dense {
	m := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, fill(i, j))
		}
	}
	return m
}

func TestMakeRegressor_EndToEnd(t *testing.T) {
	offsets := stubOffsets{1: {0, 2, 4}, 2: {0, 2, 4}}
	durations := stubDurations{1: {1, 1, 1}, 2: {1, 1, 1}}
	tf, err := New(testParams(oneModel(0, 1, 2), offsets, durations))
	require.NoError(t, err)

	fill := func(i, j int) float64 { return float64(i + j + 1) }
	train := []*mat.Dense{eventMatrix(3, 3, fill)}
	test := []*mat.Dense{eventMatrix(3, 3, fill)}

	out, err := tf.MakeRegressor(context.Background(), train, test, []int{1}, []int{2})
	require.NoError(t, err)

	require.Len(t, out.Train, 1)
	require.Len(t, out.Test, 1)
	assert.Equal(t, []int{1}, out.RunTrain)
	assert.Equal(t, []int{2}, out.RunTest)

	// Row counts come from the configured scan counts, column count from
	// the model's features.
	rows, cols := out.Train[0].Dims()
	assert.Equal(t, 100, rows)
	assert.Equal(t, 3, cols)
	rows, cols = out.Test[0].Dims()
	assert.Equal(t, 120, rows)
	assert.Equal(t, 3, cols)

	assert.Equal(t, []string{"m_0", "m_1", "m_2"}, out.Names)

	// The convolved signal carries energy once events have occurred.
	assert.Greater(t, mat.Norm(out.Train[0], 1), 0.0)
}

func TestMakeRegressor_TwoModelsShareRowCount(t *testing.T) {
	offsets := stubOffsets{1: {0, 2, 4}}
	models := []ModelSpec{
		{Name: "a", Columns: []int{0}, Scaling: ScaleIdentity, OffsetType: "word"},
		{Name: "b", Columns: []int{1}, Scaling: ScaleIdentity, OffsetType: "word"},
	}
	tf, err := New(testParams(models, offsets, stubDurations{}))
	require.NoError(t, err)

	train := []*mat.Dense{eventMatrix(3, 2, func(i, j int) float64 { return float64(i + 1) })}
	out, err := tf.MakeRegressor(context.Background(), train, nil, []int{1}, nil)
	require.NoError(t, err)

	rows, cols := out.Train[0].Dims()
	assert.Equal(t, 100, rows)
	assert.Equal(t, 2, cols)
}

func TestMakeRegressor_MissingOffsetsIsFatal(t *testing.T) {
	tf, err := New(testParams(oneModel(0), stubOffsets{}, stubDurations{}))
	require.NoError(t, err)

	train := []*mat.Dense{eventMatrix(3, 1, func(i, j int) float64 { return 1 })}
	_, err = tf.MakeRegressor(context.Background(), train, nil, []int{1}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, events.ErrOffsetsNotFound)
	assert.Contains(t, err.Error(), "run1")
}

func TestMakeRegressor_NaNRowsShrinkTheCondition(t *testing.T) {
	// Four feature rows, one of them invalid: only three events remain, so
	// the three recorded offsets line up and missing durations default to
	// three ones.
	offsets := stubOffsets{1: {0, 2, 4}}
	tf, err := New(testParams(oneModel(0), offsets, stubDurations{}))
	require.NoError(t, err)

	m := mat.NewDense(4, 1, []float64{1, math.NaN(), 2, 3})
	out, err := tf.MakeRegressor(context.Background(), []*mat.Dense{m}, nil, []int{1}, nil)
	require.NoError(t, err)

	rows, cols := out.Train[0].Dims()
	assert.Equal(t, 100, rows, "row count follows the scan count, not the event count")
	assert.Equal(t, 1, cols)

	// With explicit unit durations the result is identical, proving the
	// default duration vector was sized to the retained events.
	explicit := stubDurations{1: {1, 1, 1}}
	tf2, err := New(testParams(oneModel(0), offsets, explicit))
	require.NoError(t, err)
	out2, err := tf2.MakeRegressor(context.Background(), []*mat.Dense{m}, nil, []int{1}, nil)
	require.NoError(t, err)
	assert.True(t, mat.Equal(out.Train[0], out2.Train[0]))
}

func TestMakeRegressor_OffsetCountMismatch(t *testing.T) {
	offsets := stubOffsets{1: {0, 2}}
	tf, err := New(testParams(oneModel(0), offsets, stubDurations{}))
	require.NoError(t, err)

	train := []*mat.Dense{eventMatrix(3, 1, func(i, j int) float64 { return 1 })}
	_, err = tf.MakeRegressor(context.Background(), train, nil, []int{1}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 offsets for 3 events")
}

func TestMakeRegressor_UnknownRun(t *testing.T) {
	tf, err := New(testParams(oneModel(0), stubOffsets{7: {0}}, stubDurations{}))
	require.NoError(t, err)

	train := []*mat.Dense{eventMatrix(1, 1, func(i, j int) float64 { return 1 })}
	_, err = tf.MakeRegressor(context.Background(), train, nil, []int{7}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run 7")
}

func TestMakeRegressor_SplitSizesMustMatch(t *testing.T) {
	tf, err := New(testParams(oneModel(0), stubOffsets{}, stubDurations{}))
	require.NoError(t, err)

	train := []*mat.Dense{eventMatrix(1, 1, func(i, j int) float64 { return 1 })}
	_, err = tf.MakeRegressor(context.Background(), train, nil, []int{1, 2}, nil)
	assert.Error(t, err)
}

func TestMakeRegressor_DerivativeKernelWidensColumns(t *testing.T) {
	offsets := stubOffsets{1: {0, 10, 20}}
	p := testParams(oneModel(0), offsets, stubDurations{})
	p.HRF = hrf.SPMDerivative
	tf, err := New(p)
	require.NoError(t, err)

	train := []*mat.Dense{eventMatrix(3, 1, func(i, j int) float64 { return float64(i + 1) })}
	out, err := tf.MakeRegressor(context.Background(), train, nil, []int{1}, nil)
	require.NoError(t, err)

	_, cols := out.Train[0].Dims()
	assert.Equal(t, 2, cols)
	assert.Equal(t, []string{"m_0", "m_0_derivative"}, out.Names)
}
