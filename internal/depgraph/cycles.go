package depgraph

import "sort"

// Stats summarizes the dependency graph for one project
type Stats struct {
	TotalFiles           int
	TotalEdges           int
	CircularDependencies [][]string
	MostImportedFiles    []FileRank
}

// FileRank pairs a file with its dependent count
type FileRank struct {
	FilePath       string
	DependentCount int
}

// GetStats computes graph-wide statistics: file and edge counts, cycles
// over local edges, and the most imported files ranked by in-degree
func (e *Engine) GetStats(topN int) *Stats {
	if topN <= 0 {
		topN = 10
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := &Stats{}

	// Every file seen as a source or a local target is a vertex
	files := make(map[string]bool)
	for source, edges := range e.edgesBySource {
		files[source] = true
		stats.TotalEdges += len(edges)
		for _, edge := range edges {
			if edge.IsLocal() {
				files[edge.TargetFile] = true
			}
		}
	}
	stats.TotalFiles = len(files)

	stats.CircularDependencies = e.findCyclesLocked(files)

	ranks := make([]FileRank, 0, len(e.reverse))
	for file, incoming := range e.reverse {
		ranks = append(ranks, FileRank{FilePath: file, DependentCount: len(incoming)})
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].DependentCount != ranks[j].DependentCount {
			return ranks[i].DependentCount > ranks[j].DependentCount
		}
		return ranks[i].FilePath < ranks[j].FilePath
	})
	if len(ranks) > topN {
		ranks = ranks[:topN]
	}
	stats.MostImportedFiles = ranks

	return stats
}

// findCyclesLocked runs a full-graph DFS over local edges with a
// recursion stack. A back-edge to a file on the stack yields the cycle
// path from that file to the current one. Each cycle is canonicalized
// to its lexicographically smallest rotation and deduplicated, so only
// the minimal cycle is reported rather than every rotation of it.
func (e *Engine) findCyclesLocked(files map[string]bool) [][]string {
	const (
		white = 0 // Unvisited
		gray  = 1 // On the recursion stack
		black = 2 // Fully explored
	)
	color := make(map[string]int, len(files))
	var stack []string
	seen := make(map[string]bool)
	var cycles [][]string

	var visit func(file string)
	visit = func(file string) {
		color[file] = gray
		stack = append(stack, file)

		for _, edge := range e.edgesBySource[file] {
			if !edge.IsLocal() {
				continue
			}
			target := edge.TargetFile
			switch color[target] {
			case white:
				visit(target)
			case gray:
				// Back-edge: the cycle runs from target to the top of
				// the stack
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == target {
						cycle := canonicalizeCycle(stack[i:])
						key := cycleKey(cycle)
						if !seen[key] {
							seen[key] = true
							cycles = append(cycles, cycle)
						}
						break
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[file] = black
	}

	// Deterministic iteration order so reported cycles are stable
	ordered := make([]string, 0, len(files))
	for file := range files {
		ordered = append(ordered, file)
	}
	sort.Strings(ordered)
	for _, file := range ordered {
		if color[file] == white {
			visit(file)
		}
	}
	return cycles
}

// canonicalizeCycle rotates a cycle so its lexicographically smallest
// member comes first
func canonicalizeCycle(cycle []string) []string {
	if len(cycle) == 0 {
		return nil
	}
	smallest := 0
	for i := 1; i < len(cycle); i++ {
		if cycle[i] < cycle[smallest] {
			smallest = i
		}
	}
	out := make([]string, 0, len(cycle))
	out = append(out, cycle[smallest:]...)
	out = append(out, cycle[:smallest]...)
	return out
}

func cycleKey(cycle []string) string {
	key := ""
	for _, f := range cycle {
		key += f + "\x00"
	}
	return key
}
