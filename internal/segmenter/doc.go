// Package segmenter splits a monolithic animation script into ordered,
// independently compilable scene slices and infers a dependency graph from
// the symbols each slice produces and consumes.
//
// Scripts are treated as opaque text with two structural anchors: a mandatory
// construct entry point and zero or more next_section boundary markers.
// Symbol extraction is a documented regex heuristic, not a parser; the graph
// it yields is advisory and consumers degrade leniently when it is wrong.
package segmenter
