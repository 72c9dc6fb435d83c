package artifacts

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/encodelab/fmripipe/internal/ctxlog"
)

// Store locates the output tree for one subject of one experiment.
type Store struct {
	Root     string
	Language string
	Subject  string
}

// OutputPath builds the templated path prefix for one artifact of the
// given model set, creating the destination directory if needed. The
// returned path carries no extension; writers append their own.
func (s Store) OutputPath(modelName, dataName string) (string, error) {
	dir := filepath.Join(s.Root, s.Language, s.Subject, modelName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory %s: %w", dir, err)
	}
	name := fmt.Sprintf("%s_%s_%s", s.Subject, modelName, dataName)
	return filepath.Join(dir, name), nil
}

// SaveMatrix writes m as a headed CSV artifact and returns the path it
// wrote. The header labels the matrix columns and must match their count.
func (s Store) SaveMatrix(ctx context.Context, modelName, dataName string, header []string, m *mat.Dense) (string, error) {
	if m == nil {
		return "", fmt.Errorf("saving %s: no matrix", dataName)
	}
	rows, cols := m.Dims()
	if len(header) != cols {
		return "", fmt.Errorf("saving %s: %d header names for %d columns", dataName, len(header), cols)
	}

	prefix, err := s.OutputPath(modelName, dataName)
	if err != nil {
		return "", err
	}
	path := prefix + ".csv"

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating artifact %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("writing artifact %s: %w", path, err)
	}
	record := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			record[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("writing artifact %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("writing artifact %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing artifact %s: %w", path, err)
	}

	ctxlog.FromContext(ctx).Debug("artifact written",
		"path", path, "rows", rows, "cols", cols)
	return path, nil
}
