// Package assembler merges compiled scene clips into one final video. The
// fast path concatenates with stream copy; the transition path re-encodes
// with a crossfade between adjacent clips. A single valid clip bypasses
// ffmpeg entirely.
package assembler
