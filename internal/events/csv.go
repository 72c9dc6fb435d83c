package events

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/encodelab/fmripipe/internal/ctxlog"
)

// DirOffsetStore reads offsets from <root>/<language>/<type>_run<N>.csv.
// The file must carry a header row with an "offsets" column.
type DirOffsetStore struct {
	Root string
}

// Offsets implements OffsetStore. A missing file is a configuration error
// that names the expected path.
func (s DirOffsetStore) Offsets(ctx context.Context, offsetType string, run int, language string) ([]float64, error) {
	path := filepath.Join(s.Root, language, fmt.Sprintf("%s_run%d.csv", offsetType, run))
	values, err := readColumn(path, "offsets")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no offsets at %s: %w", path, ErrOffsetsNotFound)
		}
		return nil, fmt.Errorf("reading offsets %s: %w", path, err)
	}
	return values, nil
}

// DirDurationStore reads durations from <root>/durations/<type>_run<N>.csv.
type DirDurationStore struct {
	Root string
}

// Durations implements DurationStore. When the file is absent every event
// gets a unit duration.
func (s DirDurationStore) Durations(ctx context.Context, durationType string, run int, defaultSize int) ([]float64, error) {
	path := filepath.Join(s.Root, "durations", fmt.Sprintf("%s_run%d.csv", durationType, run))
	values, err := readColumn(path, "")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			ctxlog.FromContext(ctx).Debug("durations file absent, defaulting to unit durations",
				"path", path, "events", defaultSize)
			ones := make([]float64, defaultSize)
			for i := range ones {
				ones[i] = 1
			}
			return ones, nil
		}
		return nil, fmt.Errorf("reading durations %s: %w", path, err)
	}
	return values, nil
}

// readColumn parses one numeric column out of a headed CSV file. An empty
// column name selects the first column; otherwise the header row must
// contain the named column.
func readColumn(path, column string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: no header row", ErrMalformedFile)
	}
	idx := 0
	if column != "" {
		idx = -1
		for i, name := range header {
			if name == column {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: no %q column in header %v", ErrMalformedFile, column, header)
		}
	}

	var values []float64
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
		}
		if idx >= len(record) {
			return nil, fmt.Errorf("%w: row with %d fields, want at least %d", ErrMalformedFile, len(record), idx+1)
		}
		v, err := strconv.ParseFloat(record[idx], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrMalformedFile, record[idx])
		}
		values = append(values, v)
	}
	return values, nil
}
