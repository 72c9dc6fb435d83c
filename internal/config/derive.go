package config

import (
	"strings"

	"github.com/encodelab/fmripipe/internal/compress"
	"github.com/encodelab/fmripipe/internal/features"
	"github.com/encodelab/fmripipe/internal/transform"
)

// Runs returns the run numbers of the experiment, 1 through nb_runs.
func (e *Experiment) Runs() []int {
	runs := make([]int, e.NbRuns)
	for i := range runs {
		runs[i] = i + 1
	}
	return runs
}

// SubjectLabel returns the subject's directory name.
func (e *Experiment) SubjectLabel() string {
	return SubjectName(e.Subject)
}

// ModelSetName is the aggregated name under which the experiment's
// outputs are filed, the model names joined in declaration order.
func (e *Experiment) ModelSetName() string {
	names := make([]string, len(e.Models))
	for i, m := range e.Models {
		names[i] = m.Name
	}
	return strings.Join(names, "_")
}

// ScanCounts returns the scan-count table restricted to the experiment's
// runs.
func (e *Experiment) ScanCounts() (map[int]int, error) {
	table, err := NScans(e.Language)
	if err != nil {
		return nil, err
	}
	out := make(map[int]int, e.NbRuns)
	for _, run := range e.Runs() {
		out[run] = table[run]
	}
	return out, nil
}

// FeatureModels derives the per-model column selections for feature
// loading.
func (e *Experiment) FeatureModels() []features.ModelColumns {
	specs := make([]features.ModelColumns, len(e.Models))
	for i, m := range e.Models {
		specs[i] = features.ModelColumns{Name: m.Name, Columns: m.Columns}
	}
	return specs
}

// CompressionSpecs derives the per-model compression settings. Column
// indexes address the concatenated feature matrix, model blocks laid out
// in declaration order.
func (e *Experiment) CompressionSpecs() []compress.ModelSpec {
	specs := make([]compress.ModelSpec, len(e.Models))
	next := 0
	for i, m := range e.Models {
		cols := make([]int, len(m.Columns))
		for j := range cols {
			cols[j] = next + j
		}
		next += len(m.Columns)
		specs[i] = compress.ModelSpec{
			Name:        m.Name,
			Columns:     cols,
			Kind:        compress.Kind(m.Compression),
			NComponents: m.NComponents,
		}
	}
	return specs
}

// TransformModels derives the per-model transformation settings over a
// post-compression column partition, one index block per model in
// declaration order.
func (e *Experiment) TransformModels(columns [][]int) []transform.ModelSpec {
	specs := make([]transform.ModelSpec, len(e.Models))
	for i, m := range e.Models {
		specs[i] = transform.ModelSpec{
			Name:         m.Name,
			Columns:      columns[i],
			Scaling:      transform.ScalingKind(m.ScalingType),
			Centering:    m.Centering,
			NormOrder:    m.NormOrder,
			OffsetType:   m.OffsetType,
			DurationType: m.DurationType,
		}
	}
	return specs
}
