package events

import (
	"context"
	"errors"
)

var (
	// ErrOffsetsNotFound is reported when the offsets file for a run does
	// not exist. Offsets are mandatory: without onset times no regressor
	// can be built for the run.
	ErrOffsetsNotFound = errors.New("offsets file not found")

	// ErrMalformedFile is reported when a timing file exists but cannot be
	// parsed as a single numeric column.
	ErrMalformedFile = errors.New("malformed timing file")
)

// OffsetStore serves event onset times in seconds, keyed by offset type,
// run number and language.
type OffsetStore interface {
	Offsets(ctx context.Context, offsetType string, run int, language string) ([]float64, error)
}

// DurationStore serves event durations in seconds, keyed by duration type
// and run number. When no durations are recorded for the key, the store
// returns defaultSize unit durations instead of an error.
type DurationStore interface {
	Durations(ctx context.Context, durationType string, run int, defaultSize int) ([]float64, error)
}
