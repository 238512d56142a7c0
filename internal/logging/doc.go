// Package logging wraps log/slog with the helpers the rest of the codebase
// standardizes on: attribute constructors, component loggers, and
// context-derived fields (video, scene, step, correlation id).
package logging
