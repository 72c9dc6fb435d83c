// Package transform turns raw per-run feature matrices into design
// matrices ready for regression against imaging time series. A Transformer
// owns the per-model column partition of the concatenated feature matrix
// and applies two stages: Scale dispatches each model's column block to its
// configured scaling strategy, and MakeRegressor convolves each block with
// a haemodynamic response kernel against the run's event timing, resampling
// to the scan grid.
//
// Every statistic a scaling strategy computes (mean, standard deviation,
// norm) is fitted independently per matrix: nothing is shared between
// train and test folds or across runs, so no information leaks between
// splits. The scaling registry is closed; strategy names are resolved to
// functions when the Transformer is built and unknown names are rejected
// there, never inside the data path.
package transform
