// Package hrf builds haemodynamic response regressors for fMRI design
// matrices. A Model names a kernel family (SPM or Glover double-gamma
// shapes, optionally extended with their time and dispersion derivatives);
// ComputeRegressor samples an event condition onto an oversampled time
// grid, convolves it with each kernel, and resamples the result at the
// scan acquisition times.
//
// The numeric conventions follow the standard neuroimaging formulation:
// kernels are normalized to unit sum, the condition is rasterized with a
// 24 second pre-scan margin so early events still contribute, and
// derivative columns are orthogonalized against the preceding columns so
// the canonical response keeps its full variance.
package hrf
