package hrf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"

	"github.com/encodelab/fmripipe/internal/ctxlog"
)

const (
	// DefaultOversampling is the temporal oversampling factor applied when
	// rasterizing event conditions between scan acquisitions.
	DefaultOversampling = 50

	// DefaultMinOnset is the sampling margin, in seconds, extended before
	// the first scan so that events preceding it still shape the regressor.
	DefaultMinOnset = -24.0
)

// Condition is one experimental condition: parallel slices of event onset
// times, event durations and event amplitudes, all in seconds except the
// dimensionless amplitudes. Nil Durations mean instantaneous events; nil
// Amplitudes mean unit weight.
type Condition struct {
	Onsets     []float64
	Durations  []float64
	Amplitudes []float64
}

func (c Condition) normalized() (Condition, error) {
	n := len(c.Onsets)
	out := Condition{Onsets: c.Onsets, Durations: c.Durations, Amplitudes: c.Amplitudes}
	if out.Durations == nil {
		out.Durations = make([]float64, n)
	}
	if out.Amplitudes == nil {
		out.Amplitudes = make([]float64, n)
		for i := range out.Amplitudes {
			out.Amplitudes[i] = 1
		}
	}
	if len(out.Durations) != n || len(out.Amplitudes) != n {
		return Condition{}, fmt.Errorf("condition slices disagree: %d onsets, %d durations, %d amplitudes",
			n, len(out.Durations), len(out.Amplitudes))
	}
	return out, nil
}

// ComputeRegressor turns one event condition into design-matrix columns
// sampled at frameTimes. The condition is rasterized on a grid oversampled
// by the given factor and extended minOnset seconds before the first scan,
// convolved with each kernel of the model, resampled at the scan times, and
// finally derivative columns are orthogonalized against the columns before
// them. The returned matrix has one row per frame time and one column per
// model kernel; the names follow Model.RegressorNames for the condition
// name.
func ComputeRegressor(ctx context.Context, cond Condition, model Model, frameTimes []float64, name string, oversampling int, minOnset float64) (*mat.Dense, []string, error) {
	if len(frameTimes) < 2 {
		return nil, nil, fmt.Errorf("compute regressor %q: need at least two frame times, got %d", name, len(frameTimes))
	}
	for i := 1; i < len(frameTimes); i++ {
		if frameTimes[i] <= frameTimes[i-1] {
			return nil, nil, fmt.Errorf("compute regressor %q: frame times must be strictly increasing", name)
		}
	}
	cond, err := cond.normalized()
	if err != nil {
		return nil, nil, fmt.Errorf("compute regressor %q: %w", name, err)
	}

	// Average repetition time implied by the acquisition grid.
	tr := floats.Max(frameTimes) / float64(len(frameTimes)-1)
	kernels, err := model.Kernels(tr, oversampling)
	if err != nil {
		return nil, nil, fmt.Errorf("compute regressor %q: %w", name, err)
	}

	regressor, hrTimes := sampleCondition(ctx, cond, frameTimes, oversampling, minOnset)

	out := mat.NewDense(len(frameTimes), len(kernels), nil)
	for j, kernel := range kernels {
		convolved := convolveTruncated(regressor, kernel)
		column, err := resample(hrTimes, convolved, frameTimes)
		if err != nil {
			return nil, nil, fmt.Errorf("compute regressor %q: %w", name, err)
		}
		out.SetCol(j, column)
	}

	if err := orthogonalize(out); err != nil {
		return nil, nil, fmt.Errorf("compute regressor %q: %w", name, err)
	}
	return out, model.RegressorNames(name), nil
}

// sampleCondition rasterizes the condition as a step function on a high
// resolution time grid spanning from minOnset before the first scan to one
// repetition beyond the last. Each event adds its amplitude at its onset
// sample and removes it at its offset sample; the cumulative sum of those
// edges is the sampled box-car signal.
func sampleCondition(ctx context.Context, cond Condition, frameTimes []float64, oversampling int, minOnset float64) (regressor, hrTimes []float64) {
	n := float64(len(frameTimes))
	tMin := floats.Min(frameTimes)
	tMax := floats.Max(frameTimes)

	numHR := (n-1)/(tMax-tMin)*(tMax*(1+1/(n-1))-tMin-minOnset)*float64(oversampling) + 1
	hrTimes = linspace(tMin+minOnset, tMax*(1+1/(n-1)), int(math.RoundToEven(numHR)))
	regressor = make([]float64, len(hrTimes))

	for _, onset := range cond.Onsets {
		if onset < frameTimes[0]+minOnset {
			ctxlog.FromContext(ctx).Warn("event onset precedes the sampling window, response will be truncated",
				"onset", onset, "window_start", frameTimes[0]+minOnset)
			break
		}
	}

	last := len(hrTimes) - 1
	onsetIdx := make([]int, len(cond.Onsets))
	for i, onset := range cond.Onsets {
		idx := sort.SearchFloat64s(hrTimes, onset)
		if idx > last {
			idx = last
		}
		onsetIdx[i] = idx
		regressor[idx] += cond.Amplitudes[i]
	}
	for i, onset := range cond.Onsets {
		idx := sort.SearchFloat64s(hrTimes, onset+cond.Durations[i])
		if idx > last {
			idx = last
		}
		// An instantaneous event must still occupy one sample.
		if idx < last && idx == onsetIdx[i] {
			idx++
		}
		regressor[idx] -= cond.Amplitudes[i]
	}
	floats.CumSum(regressor, regressor)
	return regressor, hrTimes
}

// convolveTruncated computes the discrete convolution of signal and kernel,
// truncated to the length of the signal.
func convolveTruncated(signal, kernel []float64) []float64 {
	out := make([]float64, len(signal))
	for i, s := range signal {
		if s == 0 {
			continue
		}
		limit := len(signal) - i
		if limit > len(kernel) {
			limit = len(kernel)
		}
		for j := 0; j < limit; j++ {
			out[i+j] += s * kernel[j]
		}
	}
	return out
}

// resample linearly interpolates the high resolution signal at the scan
// acquisition times. The acquisition grid always lies inside the sampling
// window, so no extrapolation occurs.
func resample(hrTimes, signal, frameTimes []float64) ([]float64, error) {
	var pl interp.PiecewiseLinear
	if err := pl.Fit(hrTimes, signal); err != nil {
		return nil, fmt.Errorf("resampling regressor: %w", err)
	}
	out := make([]float64, len(frameTimes))
	for i, t := range frameTimes {
		out[i] = pl.Predict(t)
	}
	return out, nil
}

// orthogonalize removes from each column of x its least-squares projection
// onto the columns before it, leaving the first column untouched.
func orthogonalize(x *mat.Dense) error {
	rows, cols := x.Dims()
	if cols < 2 {
		return nil
	}
	for i := 1; i < cols; i++ {
		prior, ok := x.Slice(0, rows, 0, i).(*mat.Dense)
		if !ok {
			return errors.New("orthogonalize: slicing produced an unexpected matrix type")
		}
		column := mat.NewVecDense(rows, mat.Col(nil, i, x))

		var qr mat.QR
		qr.Factorize(prior)
		coef := mat.NewVecDense(i, nil)
		if err := qr.SolveVecTo(coef, false, column); err != nil {
			return fmt.Errorf("orthogonalize column %d: %w", i, err)
		}

		var projection mat.VecDense
		projection.MulVec(prior, coef)
		for r := 0; r < rows; r++ {
			x.Set(r, i, column.AtVec(r)-projection.AtVec(r))
		}
	}
	return nil
}
