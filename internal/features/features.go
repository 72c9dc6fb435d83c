package features

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/encodelab/fmripipe/internal/ctxlog"
)

// ModelColumns names a representation model and the columns to retrieve
// from its per-run files. The selection keeps the configured order, not
// the file's.
type ModelColumns struct {
	Name    string
	Columns []string
}

// Source locates the per-run representation files of one language under a
// representations root.
type Source struct {
	Root     string
	Language string
}

// RunPaths returns the per-run representation files for a model, matching
// <root>/<language>/<model>/<template>*run*.csv in lexical order. No match
// is a configuration error.
func (s Source) RunPaths(model, template string) ([]string, error) {
	pattern := filepath.Join(s.Root, s.Language, model, template+"*run*.csv")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad representation pattern %s: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no representation files match %s", pattern)
	}
	return paths, nil
}

// LoadRuns reads one design matrix per run. paths[m][r] is model m's file
// for run r; every model must provide the same number of runs, and within
// a run every model must describe the same number of words. Each run's
// matrix concatenates the models' selected columns horizontally in model
// order.
func LoadRuns(ctx context.Context, paths [][]string, models []ModelColumns) ([]*mat.Dense, error) {
	if len(models) == 0 {
		return nil, errors.New("no models to load")
	}
	if len(paths) != len(models) {
		return nil, fmt.Errorf("%d path lists for %d models", len(paths), len(models))
	}
	runs := len(paths[0])
	for i := range paths {
		if len(paths[i]) != runs {
			return nil, fmt.Errorf("model %q lists %d run files, model %q lists %d",
				models[i].Name, len(paths[i]), models[0].Name, runs)
		}
	}
	if runs == 0 {
		return nil, errors.New("no run files to load")
	}
	width := 0
	for _, m := range models {
		if len(m.Columns) == 0 {
			return nil, fmt.Errorf("model %q selects no columns", m.Name)
		}
		width += len(m.Columns)
	}

	out := make([]*mat.Dense, runs)
	for r := 0; r < runs; r++ {
		var merged *mat.Dense
		words, next := 0, 0
		for i, m := range models {
			path := paths[i][r]
			header, rows, err := readMatrix(path)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}
			if merged == nil {
				words = len(rows)
				merged = mat.NewDense(words, width, nil)
			} else if len(rows) != words {
				return nil, fmt.Errorf("%s holds %d words, model %q holds %d for the same run",
					path, len(rows), models[0].Name, words)
			}
			idx := indexHeader(header)
			for _, name := range m.Columns {
				col, ok := idx[name]
				if !ok {
					return nil, fmt.Errorf("%s: column %q: %w", path, name, ErrColumnNotFound)
				}
				for row := range rows {
					merged.Set(row, next, rows[row][col])
				}
				next++
			}
		}
		out[r] = merged
	}
	ctxlog.FromContext(ctx).Debug("representation matrices loaded",
		"runs", runs, "models", len(models), "columns", width)
	return out, nil
}
