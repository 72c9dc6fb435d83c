package transform

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ScalingKind names a scaling strategy from the closed registry. The empty
// string is an alias for identity, so models without an explicit scaling
// setting pass through unchanged.
type ScalingKind string

const (
	ScaleIdentity    ScalingKind = "identity"
	ScaleStandardize ScalingKind = "standardize"
	ScaleNormalize   ScalingKind = "normalize"
)

// ParseScalingKind resolves a configuration string to a scaling strategy,
// rejecting unknown names.
func ParseScalingKind(name string) (ScalingKind, error) {
	switch ScalingKind(name) {
	case "", ScaleIdentity:
		return ScaleIdentity, nil
	case ScaleStandardize:
		return ScaleStandardize, nil
	case ScaleNormalize:
		return ScaleNormalize, nil
	}
	return "", fmt.Errorf("unknown scaling strategy %q (known: %s, %s, %s)",
		name, ScaleIdentity, ScaleStandardize, ScaleNormalize)
}

// scaler transforms a single matrix. Implementations never mutate their
// input and never carry state between matrices.
type scaler func(m *mat.Dense) (*mat.Dense, error)

// resolveScaler binds a model's scaling configuration to a concrete
// function. Each strategy receives only the parameters it uses.
func resolveScaler(spec ModelSpec, withMean, withStd bool, axis int) (scaler, error) {
	kind, err := ParseScalingKind(string(spec.Scaling))
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", spec.Name, err)
	}
	switch kind {
	case ScaleIdentity:
		return identityScaler(spec.Centering), nil
	case ScaleStandardize:
		return standardizeScaler(withMean, withStd), nil
	case ScaleNormalize:
		order := spec.NormOrder
		if order == 0 {
			order = 2
		}
		if order < 1 && !math.IsInf(order, 1) {
			return nil, fmt.Errorf("model %q: norm order must be at least 1 or +Inf, got %g", spec.Name, order)
		}
		return normalizeScaler(order, spec.Centering, axis), nil
	}
	return nil, fmt.Errorf("model %q: unknown scaling strategy %q", spec.Name, kind)
}

// identityScaler passes matrices through untouched, or removes the
// per-column mean when centering is requested.
func identityScaler(centering bool) scaler {
	return func(m *mat.Dense) (*mat.Dense, error) {
		if !centering {
			return mat.DenseCopyOf(m), nil
		}
		return centerColumns(m), nil
	}
}

// standardizeScaler removes the per-column mean and divides by the
// per-column population standard deviation according to the configured
// flags. Constant columns keep their centered value rather than dividing
// by zero.
func standardizeScaler(withMean, withStd bool) scaler {
	return func(m *mat.Dense) (*mat.Dense, error) {
		rows, cols := m.Dims()
		out := mat.NewDense(rows, cols, nil)
		column := make([]float64, rows)
		for j := 0; j < cols; j++ {
			mat.Col(column, j, m)
			mean := stat.Mean(column, nil)
			std := stat.PopStdDev(column, nil)
			if std == 0 {
				std = 1
			}
			for i, v := range column {
				if withMean {
					v -= mean
				}
				if withStd {
					v /= std
				}
				out.Set(i, j, v)
			}
		}
		return out, nil
	}
}

// normalizeScaler optionally centers the matrix, then divides every entry
// by the mean vector norm of the given order taken along the configured
// axis (0 for column vectors, 1 for row vectors).
func normalizeScaler(order float64, centering bool, axis int) scaler {
	return func(m *mat.Dense) (*mat.Dense, error) {
		var work *mat.Dense
		if centering {
			work = centerColumns(m)
		} else {
			work = mat.DenseCopyOf(m)
		}

		rows, cols := work.Dims()
		var norms []float64
		if axis == 1 {
			buf := make([]float64, cols)
			for i := 0; i < rows; i++ {
				mat.Row(buf, i, work)
				norms = append(norms, floats.Norm(buf, order))
			}
		} else {
			buf := make([]float64, rows)
			for j := 0; j < cols; j++ {
				mat.Col(buf, j, work)
				norms = append(norms, floats.Norm(buf, order))
			}
		}

		meanNorm := stat.Mean(norms, nil)
		if meanNorm == 0 {
			return nil, errors.New("normalize: mean norm is zero, nothing to scale by")
		}
		work.Scale(1/meanNorm, work)
		return work, nil
	}
}

func centerColumns(m *mat.Dense) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, nil)
	column := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(column, j, m)
		mean := stat.Mean(column, nil)
		for i, v := range column {
			out.Set(i, j, v-mean)
		}
	}
	return out
}
