// Package depgraph maintains the file-level import graph and answers
// dependency, dependent, path and cycle queries.
//
// Only local edges participate in traversal. Third-party and standard
// library imports are kept as leaves for display.
package depgraph

import (
	"context"
	"fmt"
	"sync"

	"codelens/internal/storage"
	"codelens/pkg/types"
)

const (
	// DefaultMaxDepth bounds transitive traversals when the caller
	// passes zero
	DefaultMaxDepth = 10

	// DefaultLimit bounds result counts when the caller passes zero
	DefaultLimit = 100
)

// Dependency is one dependency or dependent hit
type Dependency struct {
	FilePath      string
	Edge          types.DependencyEdge // Edge traversed to reach this file
	Depth         int
	ImportKind    types.ImportKind
	ImportedNames []string
}

// Engine is the query-side dependency graph. A single writer (the
// indexer) replaces per-file edge sets; readers run concurrently.
type Engine struct {
	mu sync.RWMutex

	// edgesBySource owns each file's outgoing edges, traversable and not
	edgesBySource map[string][]*types.DependencyEdge

	// reverse holds incoming local edges keyed by target file
	reverse map[string][]*types.DependencyEdge
}

// NewEngine creates an empty dependency-graph engine
func NewEngine() *Engine {
	return &Engine{
		edgesBySource: make(map[string][]*types.DependencyEdge),
		reverse:       make(map[string][]*types.DependencyEdge),
	}
}

// Load rebuilds the engine from persisted edges
func (e *Engine) Load(ctx context.Context, store storage.Store, projectID int64) error {
	edges, err := store.ListDependencyEdges(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load dependency edges: %w", err)
	}

	bySource := make(map[string][]types.DependencyEdge)
	for _, edge := range edges {
		bySource[edge.SourceFile] = append(bySource[edge.SourceFile], edge)
	}
	for source, set := range bySource {
		e.ReplaceFile(source, set)
	}
	return nil
}

// ReplaceFile atomically swaps one file's outgoing edges
func (e *Engine) ReplaceFile(filePath string, edges []types.DependencyEdge) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.removeFileLocked(filePath)
	for i := range edges {
		edge := &edges[i]
		e.edgesBySource[filePath] = append(e.edgesBySource[filePath], edge)
		if edge.IsLocal() {
			e.reverse[edge.TargetFile] = append(e.reverse[edge.TargetFile], edge)
		}
	}
}

// RemoveFile drops one file's outgoing edges. Incoming edges from other
// files survive: those are owned by their source files.
func (e *Engine) RemoveFile(filePath string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeFileLocked(filePath)
}

func (e *Engine) removeFileLocked(filePath string) {
	for _, edge := range e.edgesBySource[filePath] {
		if !edge.IsLocal() {
			continue
		}
		rev := e.reverse[edge.TargetFile]
		for i, p := range rev {
			if p == edge {
				rev = append(rev[:i], rev[i+1:]...)
				break
			}
		}
		if len(rev) == 0 {
			delete(e.reverse, edge.TargetFile)
		} else {
			e.reverse[edge.TargetFile] = rev
		}
	}
	delete(e.edgesBySource, filePath)
}

// EdgeCount reports the number of edges currently held
func (e *Engine) EdgeCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, edges := range e.edgesBySource {
		n += len(edges)
	}
	return n
}

func validateQuery(filePath string, maxDepth, limit int) (int, int, error) {
	if filePath == "" {
		return 0, 0, fmt.Errorf("%w: file path is required", types.ErrInvalidQuery)
	}
	if maxDepth < 0 {
		return 0, 0, fmt.Errorf("%w: max_depth must not be negative", types.ErrInvalidQuery)
	}
	if limit < 0 {
		return 0, 0, fmt.Errorf("%w: limit must not be negative", types.ErrInvalidQuery)
	}
	if maxDepth == 0 {
		maxDepth = DefaultMaxDepth
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	return maxDepth, limit, nil
}

// GetDependencies returns the files a file imports. Direct lookups
// include third-party and standard-library imports as leaves; the
// transitive walk follows local edges only.
func (e *Engine) GetDependencies(filePath string, transitive bool, maxDepth, limit int) ([]Dependency, error) {
	maxDepth, limit, err := validateQuery(filePath, maxDepth, limit)
	if err != nil {
		return nil, err
	}
	if !transitive {
		maxDepth = 1
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.traverse(filePath, maxDepth, limit, func(file string) []*types.DependencyEdge {
		return e.edgesBySource[file]
	}, func(edge *types.DependencyEdge) string {
		return edge.TargetFile
	}), nil
}

// GetDependents returns the files importing a file, following the
// reverse local-edge relation
func (e *Engine) GetDependents(filePath string, transitive bool, maxDepth, limit int) ([]Dependency, error) {
	maxDepth, limit, err := validateQuery(filePath, maxDepth, limit)
	if err != nil {
		return nil, err
	}
	if !transitive {
		maxDepth = 1
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.traverse(filePath, maxDepth, limit, func(file string) []*types.DependencyEdge {
		return e.reverse[file]
	}, func(edge *types.DependencyEdge) string {
		return edge.SourceFile
	}), nil
}

// traverse runs a bounded breadth-first walk, tagging hits with hop
// distance and deduplicating via a visited set so cycles terminate
func (e *Engine) traverse(start string, maxDepth, limit int, edgesOf func(string) []*types.DependencyEdge, farSide func(*types.DependencyEdge) string) []Dependency {
	var results []Dependency
	visited := map[string]bool{start: true}
	frontier := []string{start}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, file := range frontier {
			for _, edge := range edgesOf(file) {
				if len(results) >= limit {
					return results
				}
				other := farSide(edge)
				if visited[other] {
					continue
				}
				results = append(results, Dependency{
					FilePath:      other,
					Edge:          *edge,
					Depth:         depth,
					ImportKind:    edge.ImportKind,
					ImportedNames: edge.ImportedNames,
				})
				// Non-local edges are leaves, never expanded
				if edge.IsLocal() {
					visited[other] = true
					next = append(next, other)
				} else {
					visited[other] = true
				}
			}
		}
		frontier = next
	}
	return results
}

// FindPath returns the shortest local-import path between two files, or
// nil when no path exists within maxDepth
func (e *Engine) FindPath(sourceFile, targetFile string, maxDepth int) ([]string, error) {
	maxDepth, _, err := validateQuery(sourceFile, maxDepth, 0)
	if err != nil {
		return nil, err
	}
	if targetFile == "" {
		return nil, fmt.Errorf("%w: target file is required", types.ErrInvalidQuery)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if sourceFile == targetFile {
		return []string{sourceFile}, nil
	}

	// BFS with parent tracking yields the shortest path
	parent := map[string]string{sourceFile: ""}
	frontier := []string{sourceFile}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, file := range frontier {
			for _, edge := range e.edgesBySource[file] {
				if !edge.IsLocal() {
					continue
				}
				if _, seen := parent[edge.TargetFile]; seen {
					continue
				}
				parent[edge.TargetFile] = file
				if edge.TargetFile == targetFile {
					return reconstructPath(parent, sourceFile, targetFile), nil
				}
				next = append(next, edge.TargetFile)
			}
		}
		frontier = next
	}
	return nil, nil
}

func reconstructPath(parent map[string]string, source, target string) []string {
	var path []string
	for at := target; at != ""; at = parent[at] {
		path = append([]string{at}, path...)
		if at == source {
			break
		}
	}
	return path
}
