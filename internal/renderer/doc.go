// Package renderer wraps the external manim binary that turns scene source
// into video clips. The Client interface keeps the compiler decoupled from
// the subprocess details so tests can substitute a fake.
package renderer
