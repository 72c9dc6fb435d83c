// Package stages adapts the module's data operations to the pipeline
// payload contract. A Registry maps the op names a pipeline definition may
// reference to operation factories; the standard ops close over the
// collaborators bundled in Deps and read and write the well-known payload
// keys, forwarding everything they do not touch.
package stages
