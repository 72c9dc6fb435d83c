package hrf

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Model names a haemodynamic response kernel family. The set of models is
// closed: ParseModel resolves a configuration string to one of the known
// constants and rejects everything else up front, so an invalid model can
// never reach the convolution loop.
type Model string

const (
	SPM              Model = "spm"
	SPMDerivative    Model = "spm + derivative"
	SPMDispersion    Model = "spm + derivative + dispersion"
	Glover           Model = "glover"
	GloverDerivative Model = "glover + derivative"
	GloverDispersion Model = "glover + derivative + dispersion"
)

// Models lists every known kernel model in a stable order.
func Models() []Model {
	return []Model{SPM, SPMDerivative, SPMDispersion, Glover, GloverDerivative, GloverDispersion}
}

// ParseModel resolves a configuration string to a Model. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseModel(name string) (Model, error) {
	normalized := Model(strings.ToLower(strings.TrimSpace(name)))
	for _, m := range Models() {
		if normalized == m {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown hrf model %q (known models: %s)", name, knownModelList())
}

func knownModelList() string {
	all := Models()
	names := make([]string, len(all))
	for i, m := range all {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

// kernelParams holds the two-gamma shape parameters of a response family.
type kernelParams struct {
	delay       float64
	undershoot  float64
	dispersion  float64
	uDispersion float64
	ratio       float64
}

var (
	spmParams    = kernelParams{delay: 6, undershoot: 16, dispersion: 1, uDispersion: 1, ratio: 0.167}
	gloverParams = kernelParams{delay: 6, undershoot: 12, dispersion: 0.9, uDispersion: 0.9, ratio: 0.35}
)

// kernelTimeLength is the temporal support of every kernel, in seconds.
const kernelTimeLength = 32.0

// Kernels returns the sampled response kernels of the model at the given
// repetition time, one kernel per regressor column, each sampled at
// tr/oversampling resolution over a 32 second window.
func (m Model) Kernels(tr float64, oversampling int) ([][]float64, error) {
	if tr <= 0 {
		return nil, fmt.Errorf("hrf kernels: repetition time must be positive, got %g", tr)
	}
	if oversampling < 1 {
		return nil, fmt.Errorf("hrf kernels: oversampling must be at least 1, got %d", oversampling)
	}
	switch m {
	case SPM:
		return [][]float64{baseKernel(tr, oversampling, 0, spmParams)}, nil
	case SPMDerivative:
		return [][]float64{
			baseKernel(tr, oversampling, 0, spmParams),
			timeDerivativeKernel(tr, oversampling, spmParams),
		}, nil
	case SPMDispersion:
		return [][]float64{
			baseKernel(tr, oversampling, 0, spmParams),
			timeDerivativeKernel(tr, oversampling, spmParams),
			dispersionDerivativeKernel(tr, oversampling, spmParams),
		}, nil
	case Glover:
		return [][]float64{baseKernel(tr, oversampling, 0, gloverParams)}, nil
	case GloverDerivative:
		return [][]float64{
			baseKernel(tr, oversampling, 0, gloverParams),
			timeDerivativeKernel(tr, oversampling, gloverParams),
		}, nil
	case GloverDispersion:
		return [][]float64{
			baseKernel(tr, oversampling, 0, gloverParams),
			timeDerivativeKernel(tr, oversampling, gloverParams),
			dispersionDerivativeKernel(tr, oversampling, gloverParams),
		}, nil
	}
	return nil, fmt.Errorf("unknown hrf model %q (known models: %s)", m, knownModelList())
}

// RegressorNames returns the design-matrix column names the model produces
// for one condition, in kernel order.
func (m Model) RegressorNames(condition string) []string {
	switch m {
	case SPMDerivative, GloverDerivative:
		return []string{condition, condition + "_derivative"}
	case SPMDispersion, GloverDispersion:
		return []string{condition, condition + "_derivative", condition + "_dispersion"}
	}
	return []string{condition}
}

// NumRegressors reports how many design-matrix columns the model produces
// per condition.
func (m Model) NumRegressors() int {
	return len(m.RegressorNames("c"))
}

// gammaDifferenceHRF samples the difference of two gamma densities at
// tr/oversampling resolution, shifted by onset and normalized to unit sum.
func gammaDifferenceHRF(tr float64, oversampling int, onset float64, p kernelParams) []float64 {
	dt := tr / float64(oversampling)
	n := int(math.RoundToEven(kernelTimeLength / dt))
	ts := linspace(0, kernelTimeLength, n)
	for i := range ts {
		ts[i] -= onset
	}

	peak := gammaPDF(ts, p.delay/p.dispersion, dt, p.dispersion)
	undershoot := gammaPDF(ts, p.undershoot/p.uDispersion, dt, p.uDispersion)

	kernel := make([]float64, n)
	for i := range kernel {
		kernel[i] = peak[i] - p.ratio*undershoot[i]
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

func baseKernel(tr float64, oversampling int, onset float64, p kernelParams) []float64 {
	return gammaDifferenceHRF(tr, oversampling, onset, p)
}

// timeDerivativeKernel approximates the kernel's derivative in time with a
// finite difference over a 100 ms onset shift.
func timeDerivativeKernel(tr float64, oversampling int, p kernelParams) []float64 {
	const do = 0.1
	base := baseKernel(tr, oversampling, 0, p)
	shifted := baseKernel(tr, oversampling, do, p)
	out := make([]float64, len(base))
	for i := range out {
		out[i] = (base[i] - shifted[i]) / do
	}
	return out
}

// dispersionDerivativeKernel approximates the kernel's derivative with
// respect to the peak dispersion with a finite difference of 0.01. The
// undershoot dispersion of the perturbed kernel stays at the default value
// of one, matching the reference formulation.
func dispersionDerivativeKernel(tr float64, oversampling int, p kernelParams) []float64 {
	const dd = 0.01
	perturbed := p
	perturbed.dispersion += dd
	perturbed.uDispersion = 1
	base := baseKernel(tr, oversampling, 0, p)
	wide := gammaDifferenceHRF(tr, oversampling, 0, perturbed)
	out := make([]float64, len(base))
	for i := range out {
		out[i] = (base[i] - wide[i]) / dd
	}
	return out
}

// gammaPDF evaluates a gamma density with the given shape, location shift
// and scale at every point of xs. Values at or below the location are zero;
// every shape used by the kernel families is well above one, so the density
// vanishes at its left boundary.
func gammaPDF(xs []float64, shape, loc, scale float64) []float64 {
	dist := distuv.Gamma{Alpha: shape, Beta: 1 / scale}
	out := make([]float64, len(xs))
	for i, x := range xs {
		if x <= loc {
			continue
		}
		out[i] = dist.Prob(x - loc)
	}
	return out
}

// linspace samples num evenly spaced points from start to stop inclusive.
func linspace(start, stop float64, num int) []float64 {
	if num == 1 {
		return []float64{start}
	}
	out := make([]float64, num)
	step := (stop - start) / float64(num-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[num-1] = stop
	return out
}
