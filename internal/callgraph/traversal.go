package callgraph

import (
	"fmt"

	"codelens/pkg/types"
)

// CallEntry is one caller or callee hit. Node is nil when the name at
// the call site did not resolve to any indexed function.
type CallEntry struct {
	QualifiedName string // Function on the far side of the edge
	Node          *types.FunctionNode
	Site          types.CallSite // Edge realizing the relation
	Depth         int            // Hop distance from the query target
}

// CallersResult groups direct and transitive callers of a function
type CallersResult struct {
	Direct     []CallEntry
	Indirect   []CallEntry
	TotalCount int
}

// CalleesResult groups direct and transitive callees of a function
type CalleesResult struct {
	Direct     []CallEntry
	Indirect   []CallEntry
	TotalCount int
}

// CallChain is one source-to-target path with the call sites realizing
// each hop
type CallChain struct {
	Path      []string // Qualified names, source first
	CallSites []types.CallSite
}

// validateTraversal rejects bad depth/limit parameters before any
// traversal work begins, substituting defaults for zero values
func validateTraversal(name string, maxDepth, limit int) (int, int, error) {
	if name == "" {
		return 0, 0, fmt.Errorf("%w: function name is required", types.ErrInvalidQuery)
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

// FindCallers returns functions calling the named function. Direct
// callers sit at depth 1; with includeIndirect the reverse relation is
// walked breadth-first up to maxDepth, tagging each hit with its hop
// distance. An unknown name yields an empty result, not an error.
func (e *Engine) FindCallers(name string, includeIndirect bool, maxDepth, limit int) (*CallersResult, error) {
	maxDepth, limit, err := validateTraversal(name, maxDepth, limit)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &CallersResult{}
	targets := e.resolveLocked(name)
	if len(targets) == 0 {
		return result, nil
	}

	visited := make(map[string]bool)
	frontier := targets
	for _, t := range targets {
		visited[t.QualifiedName] = true
	}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []*types.FunctionNode
		for _, node := range frontier {
			for _, site := range e.sitesCallingLocked(node) {
				if result.TotalCount >= limit {
					frontier = nil
					break
				}
				entry := CallEntry{
					QualifiedName: site.CallerQualifiedName,
					Site:          *site,
					Depth:         depth,
				}
				callers := e.resolveLocked(site.CallerQualifiedName)
				if len(callers) > 0 {
					entry.Node = callers[0]
				}
				if depth == 1 {
					result.Direct = append(result.Direct, entry)
				} else {
					result.Indirect = append(result.Indirect, entry)
				}
				result.TotalCount++

				for _, caller := range callers {
					if !visited[caller.QualifiedName] {
						visited[caller.QualifiedName] = true
						next = append(next, caller)
					}
				}
			}
		}
		if !includeIndirect {
			break
		}
		frontier = next
	}
	return result, nil
}

// FindCallees returns functions called by the named function,
// symmetric to FindCallers in the forward direction. An ambiguous
// callee name produces one entry per matching node.
func (e *Engine) FindCallees(name string, includeIndirect bool, maxDepth, limit int) (*CalleesResult, error) {
	maxDepth, limit, err := validateTraversal(name, maxDepth, limit)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &CalleesResult{}
	sources := e.resolveLocked(name)
	if len(sources) == 0 {
		return result, nil
	}

	visited := make(map[string]bool)
	frontier := sources
	for _, s := range sources {
		visited[s.QualifiedName] = true
	}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []*types.FunctionNode
		for _, node := range frontier {
			for _, site := range e.sitesByCaller[node.QualifiedName] {
				if result.TotalCount >= limit {
					frontier = nil
					break
				}
				callees := e.resolveLocked(site.CalleeName)
				entries := make([]CallEntry, 0, 1)
				if len(callees) == 0 {
					// Unresolved target, still worth reporting
					entries = append(entries, CallEntry{
						QualifiedName: site.CalleeName,
						Site:          *site,
						Depth:         depth,
					})
				}
				for _, callee := range callees {
					entries = append(entries, CallEntry{
						QualifiedName: callee.QualifiedName,
						Node:          callee,
						Site:          *site,
						Depth:         depth,
					})
					if !visited[callee.QualifiedName] {
						visited[callee.QualifiedName] = true
						next = append(next, callee)
					}
				}
				for _, entry := range entries {
					if result.TotalCount >= limit {
						break
					}
					if depth == 1 {
						result.Direct = append(result.Direct, entry)
					} else {
						result.Indirect = append(result.Indirect, entry)
					}
					result.TotalCount++
				}
			}
		}
		if !includeIndirect {
			break
		}
		frontier = next
	}
	return result, nil
}

// chainState is one partial path during chain search
type chainState struct {
	nodes []string
	sites []types.CallSite
	last  *types.FunctionNode
}

// GetCallChain enumerates up to maxPaths simple paths from one function
// to another. Breadth-first expansion returns shorter paths first; each
// hop carries the call site realizing it. Paths never repeat a node, so
// recursive cycles cannot hang the search.
func (e *Engine) GetCallChain(from, to string, maxPaths, maxDepth int) ([]CallChain, error) {
	maxDepth, maxPaths, err := validateTraversal(from, maxDepth, maxPaths)
	if err != nil {
		return nil, err
	}
	if to == "" {
		return nil, fmt.Errorf("%w: target function name is required", types.ErrInvalidQuery)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	sources := e.resolveLocked(from)
	targets := e.resolveLocked(to)
	if len(sources) == 0 || len(targets) == 0 {
		return nil, nil
	}

	// Names that complete a path when seen at a call site
	targetNames := make(map[string]*types.FunctionNode)
	for _, t := range targets {
		targetNames[t.Name] = t
		targetNames[t.QualifiedName] = t
	}

	var queue []chainState
	for _, src := range sources {
		queue = append(queue, chainState{nodes: []string{src.QualifiedName}, last: src})
	}

	var chains []CallChain
	expansions := 0
	for len(queue) > 0 && len(chains) < maxPaths && expansions < maxExpansions {
		state := queue[0]
		queue = queue[1:]

		if len(state.nodes) > maxDepth {
			continue
		}

		for _, site := range e.sitesByCaller[state.last.QualifiedName] {
			expansions++

			if target, ok := targetNames[site.CalleeName]; ok && !containsName(state.nodes, target.QualifiedName) {
				chain := CallChain{
					Path:      append(append([]string(nil), state.nodes...), target.QualifiedName),
					CallSites: append(append([]types.CallSite(nil), state.sites...), *site),
				}
				chains = append(chains, chain)
				if len(chains) >= maxPaths {
					break
				}
				continue
			}

			for _, callee := range e.resolveLocked(site.CalleeName) {
				if containsName(state.nodes, callee.QualifiedName) {
					continue // Simple paths only
				}
				queue = append(queue, chainState{
					nodes: append(append([]string(nil), state.nodes...), callee.QualifiedName),
					sites: append(append([]types.CallSite(nil), state.sites...), *site),
					last:  callee,
				})
			}
		}
	}
	return chains, nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// FindImplementations looks up recorded implementations of a named
// interface or base class, optionally filtered by language
func (e *Engine) FindImplementations(interfaceName string, languageFilter types.Language, limit int) ([]types.InterfaceImplementation, error) {
	if interfaceName == "" {
		return nil, fmt.Errorf("%w: interface name is required", types.ErrInvalidQuery)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", types.ErrInvalidQuery)
	}
	if limit == 0 {
		limit = DefaultLimit
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var results []types.InterfaceImplementation
	for _, impl := range e.implsByIface[interfaceName] {
		if languageFilter != "" && impl.Language != languageFilter {
			continue
		}
		results = append(results, *impl)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
