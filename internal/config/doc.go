// Package config loads and validates the experiment description of an
// encoding run: acquisition parameters, filesystem roots, and the
// per-model column, scaling, compression and event-timing settings. It
// also carries the built-in acquisition tables (per-language scan counts
// and subject ids) and derives the typed specifications the processing
// stages consume.
package config
