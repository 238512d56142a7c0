// Package compiler turns pending scenes into rendered artifacts. It offers
// unordered parallel compilation for independent scenes and a sequential
// dependency-aware mode driven by the symbol graph. Retry policy lives in the
// workflow engine; a compile here either succeeds or records the failure on
// the scene and returns.
package compiler
