// Package features loads the per-run input matrices of an experiment from
// CSV files. Model representations are selected by column name and
// concatenated horizontally into one design matrix per run; fMRI signal
// matrices are loaded whole, with an optional perturbation of all-zero
// voxel columns so later correlation statistics stay defined.
package features
