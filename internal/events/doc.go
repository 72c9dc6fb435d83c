// Package events provides the stores for event timing data: per-run onset
// times ("offsets") and event durations. Both are small single-column CSV
// files laid out under a root directory; offsets are required and their
// absence is a configuration error naming the expected path, while a
// missing durations file silently falls back to unit durations.
package events
