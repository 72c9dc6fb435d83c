package transform

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/encodelab/fmripipe/internal/ctxlog"
	"github.com/encodelab/fmripipe/internal/events"
	"github.com/encodelab/fmripipe/internal/hrf"
)

// ModelSpec describes one model's column block inside the concatenated
// feature matrix: which columns belong to it, how they are scaled, and
// which event timing labels drive its regressor construction.
type ModelSpec struct {
	Name         string
	Columns      []int
	Scaling      ScalingKind
	Centering    bool
	NormOrder    float64
	OffsetType   string
	DurationType string
}

// Params is the immutable configuration of a Transformer.
type Params struct {
	TR            float64
	NScans        map[int]int
	Language      string
	HRF           hrf.Model
	Oversampling  int
	TemporalShift float64
	ScalingAxis   int
	WithMean      bool
	WithStd       bool
	Models        []ModelSpec
	Offsets       events.OffsetStore
	Durations     events.DurationStore
}

// ScaledSplit carries per-run design matrices partitioned into train and
// test folds.
type ScaledSplit struct {
	Train []*mat.Dense
	Test  []*mat.Dense
}

// RegressorSplit carries per-run regressor matrices partitioned into train
// and test folds, the run numbers backing each fold, and the design-matrix
// column names shared by every run.
type RegressorSplit struct {
	Train    []*mat.Dense
	Test     []*mat.Dense
	RunTrain []int
	RunTest  []int
	Names    []string
}

// Transformer applies per-model scaling and regressor construction over
// run-partitioned feature matrices. Build one with New, which validates
// the configuration eagerly: the column partition, the scaling registry
// lookups and the kernel model are all checked before any data flows.
type Transformer struct {
	tr            float64
	nscans        map[int]int
	language      string
	hrfModel      hrf.Model
	oversampling  int
	temporalShift float64
	models        []ModelSpec
	scalers       []scaler
	offsets       events.OffsetStore
	durations     events.DurationStore
	totalColumns  int
}

// New builds a Transformer, rejecting invalid configuration up front.
func New(p Params) (*Transformer, error) {
	if p.TR <= 0 {
		return nil, fmt.Errorf("transformer: repetition time must be positive, got %g", p.TR)
	}
	if p.Oversampling < 1 {
		return nil, fmt.Errorf("transformer: oversampling must be at least 1, got %d", p.Oversampling)
	}
	if p.ScalingAxis != 0 && p.ScalingAxis != 1 {
		return nil, fmt.Errorf("transformer: scaling axis must be 0 or 1, got %d", p.ScalingAxis)
	}
	if len(p.Models) == 0 {
		return nil, errors.New("transformer: at least one model is required")
	}
	if p.Offsets == nil || p.Durations == nil {
		return nil, errors.New("transformer: offset and duration stores are required")
	}
	if len(p.NScans) == 0 {
		return nil, errors.New("transformer: scan counts are required")
	}
	for run, n := range p.NScans {
		if n < 2 {
			return nil, fmt.Errorf("transformer: run %d needs at least 2 scans, got %d", run, n)
		}
	}
	if !knownHRFModel(p.HRF) {
		return nil, fmt.Errorf("transformer: unknown hrf model %q", p.HRF)
	}

	total, err := validatePartition(p.Models)
	if err != nil {
		return nil, fmt.Errorf("transformer: %w", err)
	}

	scalers := make([]scaler, len(p.Models))
	for i, spec := range p.Models {
		s, err := resolveScaler(spec, p.WithMean, p.WithStd, p.ScalingAxis)
		if err != nil {
			return nil, fmt.Errorf("transformer: %w", err)
		}
		scalers[i] = s
	}

	return &Transformer{
		tr:            p.TR,
		nscans:        p.NScans,
		language:      p.Language,
		hrfModel:      p.HRF,
		oversampling:  p.Oversampling,
		temporalShift: p.TemporalShift,
		models:        p.Models,
		scalers:       scalers,
		offsets:       p.Offsets,
		durations:     p.Durations,
		totalColumns:  total,
	}, nil
}

func knownHRFModel(m hrf.Model) bool {
	for _, known := range hrf.Models() {
		if m == known {
			return true
		}
	}
	return false
}

// validatePartition checks that the model column sets are pairwise disjoint
// and together cover exactly 0..N-1, and returns N.
func validatePartition(models []ModelSpec) (int, error) {
	total := 0
	for _, m := range models {
		if len(m.Columns) == 0 {
			return 0, fmt.Errorf("model %q has no columns", m.Name)
		}
		total += len(m.Columns)
	}
	seen := make(map[int]string, total)
	for _, m := range models {
		for _, c := range m.Columns {
			if c < 0 || c >= total {
				return 0, fmt.Errorf("model %q column %d outside the concatenated range [0,%d)", m.Name, c, total)
			}
			if owner, dup := seen[c]; dup {
				return 0, fmt.Errorf("column %d claimed by both %q and %q", c, owner, m.Name)
			}
			seen[c] = m.Name
		}
	}
	return total, nil
}

// Scale dispatches each model's column block to its scaling strategy,
// every matrix fitted independently, then concatenates the transformed
// blocks per run in model order. Both fold lists must hold matrices with
// the full concatenated column count.
func (t *Transformer) Scale(ctx context.Context, train, test []*mat.Dense) (ScaledSplit, error) {
	matrices := concatSplits(train, test)
	for k, m := range matrices {
		if _, cols := m.Dims(); cols != t.totalColumns {
			return ScaledSplit{}, fmt.Errorf("scale: matrix %d has %d columns, want %d", k, cols, t.totalColumns)
		}
	}
	ctxlog.FromContext(ctx).Debug("scaling feature blocks",
		"models", len(t.models), "train_runs", len(train), "test_runs", len(test))

	// blocks[i][k] is model i's transformed slice of matrix k.
	blocks := make([][]*mat.Dense, len(t.models))
	for i, model := range t.models {
		blocks[i] = make([]*mat.Dense, len(matrices))
		for k, m := range matrices {
			slice, err := extractColumns(m, model.Columns)
			if err != nil {
				return ScaledSplit{}, fmt.Errorf("scale model %q: %w", model.Name, err)
			}
			scaled, err := t.scalers[i](slice)
			if err != nil {
				return ScaledSplit{}, fmt.Errorf("scale model %q: %w", model.Name, err)
			}
			blocks[i][k] = scaled
		}
	}

	merged := make([]*mat.Dense, len(matrices))
	parts := make([]*mat.Dense, len(t.models))
	for k := range matrices {
		for i := range t.models {
			parts[i] = blocks[i][k]
		}
		m, err := hstack(parts)
		if err != nil {
			return ScaledSplit{}, fmt.Errorf("scale: concatenating matrix %d: %w", k, err)
		}
		merged[k] = m
	}
	return ScaledSplit{Train: merged[:len(train)], Test: merged[len(train):]}, nil
}

// MakeRegressor convolves every model's column block with the configured
// response kernel, one run at a time, and concatenates the per-model
// regressor blocks into one matrix per run. The output row count of each
// run is its configured scan count, independent of how many events
// survived missing-value removal. The train/test partition of the input is
// preserved in the output.
func (t *Transformer) MakeRegressor(ctx context.Context, train, test []*mat.Dense, runTrain, runTest []int) (RegressorSplit, error) {
	if len(train) != len(runTrain) || len(test) != len(runTest) {
		return RegressorSplit{}, fmt.Errorf("make regressor: %d/%d matrices for %d/%d runs",
			len(train), len(test), len(runTrain), len(runTest))
	}

	matrices := concatSplits(train, test)
	runs := make([]int, 0, len(runTrain)+len(runTest))
	runs = append(runs, runTrain...)
	runs = append(runs, runTest...)

	out := make([]*mat.Dense, len(matrices))
	for k, m := range matrices {
		run := runs[k]
		parts := make([]*mat.Dense, len(t.models))
		for i, model := range t.models {
			block, err := t.regressorBlock(ctx, m, model, run)
			if err != nil {
				return RegressorSplit{}, err
			}
			parts[i] = block
		}
		merged, err := hstack(parts)
		if err != nil {
			return RegressorSplit{}, fmt.Errorf("make regressor run %d: %w", run, err)
		}
		out[k] = merged
	}

	return RegressorSplit{
		Train:    out[:len(train)],
		Test:     out[len(train):],
		RunTrain: runTrain,
		RunTest:  runTest,
		Names:    t.regressorNames(),
	}, nil
}

// regressorBlock builds one model's regressor matrix for one run: drop
// rows with missing values, fetch the run's offsets and durations, shift
// the onsets, then convolve each feature column as its own condition.
func (t *Transformer) regressorBlock(ctx context.Context, m *mat.Dense, model ModelSpec, run int) (*mat.Dense, error) {
	nscans, ok := t.nscans[run]
	if !ok {
		return nil, fmt.Errorf("make regressor: no scan count configured for run %d", run)
	}

	block, err := extractColumns(m, model.Columns)
	if err != nil {
		return nil, fmt.Errorf("make regressor model %q run %d: %w", model.Name, run, err)
	}
	columns := dropNaNRows(block)
	nEvents := len(columns[0])

	offsets, err := t.offsets.Offsets(ctx, model.OffsetType, run, t.language)
	if err != nil {
		return nil, fmt.Errorf("make regressor model %q run %d: %w", model.Name, run, err)
	}
	durations, err := t.durations.Durations(ctx, model.DurationType, run, nEvents)
	if err != nil {
		return nil, fmt.Errorf("make regressor model %q run %d: %w", model.Name, run, err)
	}
	if len(offsets) != nEvents {
		return nil, fmt.Errorf("make regressor model %q run %d: %d offsets for %d events",
			model.Name, run, len(offsets), nEvents)
	}
	if len(durations) != nEvents {
		return nil, fmt.Errorf("make regressor model %q run %d: %d durations for %d events",
			model.Name, run, len(durations), nEvents)
	}

	onsets := make([]float64, nEvents)
	for i, o := range offsets {
		onsets[i] = o + t.temporalShift
	}

	frames := frameTimes(nscans, t.tr)
	ctxlog.FromContext(ctx).Debug("convolving feature block",
		"model", model.Name, "run", run, "events", nEvents, "scans", nscans)

	parts := make([]*mat.Dense, len(columns))
	for j, amplitudes := range columns {
		cond := hrf.Condition{Onsets: onsets, Durations: durations, Amplitudes: amplitudes}
		name := fmt.Sprintf("%s_%d", model.Name, j)
		signal, _, err := hrf.ComputeRegressor(ctx, cond, t.hrfModel, frames, name,
			t.oversampling, hrf.DefaultMinOnset)
		if err != nil {
			return nil, fmt.Errorf("make regressor model %q run %d: %w", model.Name, run, err)
		}
		parts[j] = signal
	}
	return hstack(parts)
}

// regressorNames lists the design-matrix column names produced by
// MakeRegressor, identical for every run.
func (t *Transformer) regressorNames() []string {
	var names []string
	for _, model := range t.models {
		for j := range model.Columns {
			names = append(names, t.hrfModel.RegressorNames(fmt.Sprintf("%s_%d", model.Name, j))...)
		}
	}
	return names
}

// frameTimes is the scan acquisition grid 0, tr, ..., (nscans-1)*tr.
func frameTimes(nscans int, tr float64) []float64 {
	out := make([]float64, nscans)
	for i := range out {
		out[i] = float64(i) * tr
	}
	return out
}

// dropNaNRows returns the matrix as per-column slices with every row that
// contains a missing value removed. The result always has one slice per
// column, possibly empty.
func dropNaNRows(m *mat.Dense) [][]float64 {
	rows, cols := m.Dims()
	columns := make([][]float64, cols)
	for i := 0; i < rows; i++ {
		keep := true
		for j := 0; j < cols; j++ {
			if math.IsNaN(m.At(i, j)) {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}
		for j := 0; j < cols; j++ {
			columns[j] = append(columns[j], m.At(i, j))
		}
	}
	return columns
}

func concatSplits(train, test []*mat.Dense) []*mat.Dense {
	out := make([]*mat.Dense, 0, len(train)+len(test))
	out = append(out, train...)
	out = append(out, test...)
	return out
}

// extractColumns copies the given columns of m, in the given order, into a
// new matrix.
func extractColumns(m *mat.Dense, columns []int) (*mat.Dense, error) {
	rows, cols := m.Dims()
	if rows == 0 {
		return nil, errors.New("matrix has no rows")
	}
	for _, c := range columns {
		if c < 0 || c >= cols {
			return nil, fmt.Errorf("column %d out of range for a %d-column matrix", c, cols)
		}
	}
	out := mat.NewDense(rows, len(columns), nil)
	buf := make([]float64, rows)
	for j, c := range columns {
		mat.Col(buf, c, m)
		out.SetCol(j, buf)
	}
	return out, nil
}

// hstack concatenates matrices horizontally. All parts must share a row
// count.
func hstack(parts []*mat.Dense) (*mat.Dense, error) {
	if len(parts) == 0 {
		return nil, errors.New("hstack: nothing to concatenate")
	}
	rows, _ := parts[0].Dims()
	total := 0
	for _, p := range parts {
		r, c := p.Dims()
		if r != rows {
			return nil, fmt.Errorf("hstack: row mismatch %d vs %d", r, rows)
		}
		total += c
	}
	out := mat.NewDense(rows, total, nil)
	offset := 0
	buf := make([]float64, rows)
	for _, p := range parts {
		_, c := p.Dims()
		for j := 0; j < c; j++ {
			mat.Col(buf, j, p)
			out.SetCol(offset+j, buf)
		}
		offset += c
	}
	return out, nil
}
