// Package app contains the core application logic. It wires the
// experiment configuration, the pipeline definition and the stage
// registry into a runnable whole, decoupled from any specific entrypoint
// like a CLI.
package app
