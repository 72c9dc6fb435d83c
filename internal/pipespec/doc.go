// Package pipespec loads pipeline definitions from HCL files. A pipeline
// block declares named stages, each binding an operation name from the
// stage registry, the stages it depends on, and free-form options for the
// operation's constructor. Build wires a validated definition into an
// executable task graph.
package pipespec
