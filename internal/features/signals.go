package features

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/encodelab/fmripipe/internal/ctxlog"
)

// SignalPaths returns the per-run fMRI signal files for a subject,
// matching <root>/<language>/<subject>/func/fMRI_*run*.csv in lexical
// order. No match is a configuration error.
func SignalPaths(root, language, subject string) ([]string, error) {
	pattern := filepath.Join(root, language, subject, "func", "fMRI_*run*.csv")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad signal pattern %s: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no signal files match %s", pattern)
	}
	return paths, nil
}

// LoadSignals reads one scans-by-voxels matrix per run file. Every run
// must carry the same voxel columns.
func LoadSignals(ctx context.Context, paths []string) ([]*mat.Dense, error) {
	if len(paths) == 0 {
		return nil, errors.New("no signal files to load")
	}
	out := make([]*mat.Dense, len(paths))
	voxels := -1
	for r, path := range paths {
		header, rows, err := readMatrix(path)
		if err != nil {
			return nil, fmt.Errorf("reading signals %s: %w", path, err)
		}
		if voxels < 0 {
			voxels = len(header)
		} else if len(header) != voxels {
			return nil, fmt.Errorf("%s holds %d voxel columns, earlier runs hold %d",
				path, len(header), voxels)
		}
		m := mat.NewDense(len(rows), len(header), nil)
		for i, row := range rows {
			m.SetRow(i, row)
		}
		out[r] = m
	}
	ctxlog.FromContext(ctx).Debug("fmri signals loaded", "runs", len(out), "voxels", voxels)
	return out, nil
}

// JitterConstantColumns nudges the first sample of every all-zero column
// so correlation statistics over the column stay defined. All zero columns
// of one run share the same perturbation; each run draws its own, uniform
// in [0, 1/1000).
func JitterConstantColumns(matrices []*mat.Dense, r *rand.Rand) {
	for _, m := range matrices {
		rows, cols := m.Dims()
		if rows == 0 {
			continue
		}
		eps := r.Float64() / 1000
		for j := 0; j < cols; j++ {
			if constantZeroColumn(m, j, rows) {
				m.Set(0, j, eps)
			}
		}
	}
}

func constantZeroColumn(m *mat.Dense, col, rows int) bool {
	for i := 0; i < rows; i++ {
		if m.At(i, col) != 0 {
			return false
		}
	}
	return true
}
