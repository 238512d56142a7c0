package segmenter

import "sort"

// DependencyGraph records, for each slice, the names of earlier slices that
// produced a symbol it consumes. The graph is advisory: it is built from the
// same regex heuristic as ExtractSymbols and may include spurious edges.
type DependencyGraph struct {
	deps map[string][]string
}

// BuildGraph resolves each symbol to its producer, last writer in document
// order winning, then derives per-slice dependencies from consumed symbols.
// Self-references are excluded.
func BuildGraph(slices []Slice) DependencyGraph {
	producers := make(map[string]string)
	for _, slice := range slices {
		for _, symbol := range slice.Produced {
			producers[symbol] = slice.Name
		}
	}

	graph := DependencyGraph{deps: make(map[string][]string, len(slices))}
	for _, slice := range slices {
		depSet := make(map[string]struct{})
		for _, symbol := range slice.Consumed {
			producer, ok := producers[symbol]
			if !ok || producer == slice.Name {
				continue
			}
			depSet[producer] = struct{}{}
		}
		graph.deps[slice.Name] = sortedKeys(depSet)
	}
	return graph
}

// DependenciesOf returns the producer scene names the given scene depends on,
// sorted for stable iteration. Unknown names return nil.
func (g DependencyGraph) DependenciesOf(name string) []string {
	deps := g.deps[name]
	if len(deps) == 0 {
		return nil
	}
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// Names returns every scene name the graph knows about, sorted.
func (g DependencyGraph) Names() []string {
	names := make([]string, 0, len(g.deps))
	for name := range g.deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
