// Package generation asks an LLM for scene source code. The client issues a
// single request per call and surfaces HTTP failures with enough detail for
// the workflow engine to classify them; retry and backoff live there, not
// here. Generated code gets structural validation only, never semantic
// checks.
package generation
