// Package callgraph maintains the in-memory call graph and answers
// caller, callee, chain and implementation queries against it.
//
// The engine holds per-file slices plus name-keyed indexes. Callee names
// are recorded as written at the call site, so resolution from a name to
// concrete function nodes happens at query time. Ambiguous names resolve
// to every matching node; callers filter by file or qualified name when
// they need precision.
package callgraph

import (
	"context"
	"fmt"
	"sync"

	"codelens/internal/storage"
	"codelens/pkg/types"
)

const (
	// DefaultMaxDepth bounds traversals when the caller passes zero
	DefaultMaxDepth = 5

	// DefaultLimit bounds result counts when the caller passes zero
	DefaultLimit = 50

	// maxExpansions caps total path expansions in chain search so a
	// dense graph cannot blow up a single query
	maxExpansions = 10000
)

// Engine is the query-side call graph. A single writer (the indexer)
// replaces per-file slices; readers run concurrently at all times.
type Engine struct {
	mu sync.RWMutex

	// Per-file ownership, so one file's slice of the graph can be
	// replaced atomically under the write lock
	nodesByFile map[string][]*types.FunctionNode
	sitesByFile map[string][]*types.CallSite
	implsByFile map[string][]*types.InterfaceImplementation

	// Query indexes
	nodesByQualified map[string][]*types.FunctionNode
	nodesByName      map[string][]*types.FunctionNode
	sitesByCallee    map[string][]*types.CallSite
	sitesByCaller    map[string][]*types.CallSite
	implsByIface     map[string][]*types.InterfaceImplementation
}

// NewEngine creates an empty call-graph engine
func NewEngine() *Engine {
	return &Engine{
		nodesByFile:      make(map[string][]*types.FunctionNode),
		sitesByFile:      make(map[string][]*types.CallSite),
		implsByFile:      make(map[string][]*types.InterfaceImplementation),
		nodesByQualified: make(map[string][]*types.FunctionNode),
		nodesByName:      make(map[string][]*types.FunctionNode),
		sitesByCallee:    make(map[string][]*types.CallSite),
		sitesByCaller:    make(map[string][]*types.CallSite),
		implsByIface:     make(map[string][]*types.InterfaceImplementation),
	}
}

// Load rebuilds the engine from persisted graph rows. Called once at
// startup before the server accepts queries.
func (e *Engine) Load(ctx context.Context, store storage.Store, projectID int64) error {
	nodes, err := store.ListFunctionNodes(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load function nodes: %w", err)
	}
	sites, err := store.ListCallSites(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load call sites: %w", err)
	}
	impls, err := store.ListImplementations(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load implementations: %w", err)
	}

	byFile := make(map[string]fileSlice)
	for i := range nodes {
		fs := byFile[nodes[i].FilePath]
		fs.nodes = append(fs.nodes, nodes[i])
		byFile[nodes[i].FilePath] = fs
	}
	for i := range sites {
		fs := byFile[sites[i].CallerFile]
		fs.sites = append(fs.sites, sites[i])
		byFile[sites[i].CallerFile] = fs
	}
	for i := range impls {
		fs := byFile[impls[i].FilePath]
		fs.impls = append(fs.impls, impls[i])
		byFile[impls[i].FilePath] = fs
	}

	for filePath, fs := range byFile {
		e.ReplaceFile(filePath, fs.nodes, fs.sites, fs.impls)
	}
	return nil
}

type fileSlice struct {
	nodes []types.FunctionNode
	sites []types.CallSite
	impls []types.InterfaceImplementation
}

// ReplaceFile atomically swaps one file's slice of the graph. Readers
// see either the old set or the new set, never a mixture.
func (e *Engine) ReplaceFile(filePath string, nodes []types.FunctionNode, sites []types.CallSite, impls []types.InterfaceImplementation) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.removeFileLocked(filePath)

	for i := range nodes {
		node := &nodes[i]
		e.nodesByFile[filePath] = append(e.nodesByFile[filePath], node)
		e.nodesByQualified[node.QualifiedName] = append(e.nodesByQualified[node.QualifiedName], node)
		e.nodesByName[node.Name] = append(e.nodesByName[node.Name], node)
	}
	for i := range sites {
		site := &sites[i]
		e.sitesByFile[filePath] = append(e.sitesByFile[filePath], site)
		e.sitesByCallee[site.CalleeName] = append(e.sitesByCallee[site.CalleeName], site)
		e.sitesByCaller[site.CallerQualifiedName] = append(e.sitesByCaller[site.CallerQualifiedName], site)
	}
	for i := range impls {
		impl := &impls[i]
		e.implsByFile[filePath] = append(e.implsByFile[filePath], impl)
		e.implsByIface[impl.InterfaceName] = append(e.implsByIface[impl.InterfaceName], impl)
	}
}

// RemoveFile drops one file's slice of the graph
func (e *Engine) RemoveFile(filePath string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeFileLocked(filePath)
}

func (e *Engine) removeFileLocked(filePath string) {
	for _, node := range e.nodesByFile[filePath] {
		e.nodesByQualified[node.QualifiedName] = removePtr(e.nodesByQualified[node.QualifiedName], node)
		e.nodesByName[node.Name] = removePtr(e.nodesByName[node.Name], node)
	}
	for _, site := range e.sitesByFile[filePath] {
		e.sitesByCallee[site.CalleeName] = removePtr(e.sitesByCallee[site.CalleeName], site)
		e.sitesByCaller[site.CallerQualifiedName] = removePtr(e.sitesByCaller[site.CallerQualifiedName], site)
	}
	for _, impl := range e.implsByFile[filePath] {
		e.implsByIface[impl.InterfaceName] = removePtr(e.implsByIface[impl.InterfaceName], impl)
	}
	delete(e.nodesByFile, filePath)
	delete(e.sitesByFile, filePath)
	delete(e.implsByFile, filePath)
}

// removePtr deletes one pointer from a slice, dropping empty slices to nil
func removePtr[T any](slice []*T, target *T) []*T {
	for i, p := range slice {
		if p == target {
			slice = append(slice[:i], slice[i+1:]...)
			break
		}
	}
	if len(slice) == 0 {
		return nil
	}
	return slice
}

// NodeCount reports the number of function nodes currently held
func (e *Engine) NodeCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, nodes := range e.nodesByFile {
		n += len(nodes)
	}
	return n
}

// EdgeCount reports the number of call sites currently held
func (e *Engine) EdgeCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, sites := range e.sitesByFile {
		n += len(sites)
	}
	return n
}

// resolveLocked returns every node matching a name, exact and
// case-sensitive, trying qualified names before simple names
func (e *Engine) resolveLocked(name string) []*types.FunctionNode {
	if nodes := e.nodesByQualified[name]; len(nodes) > 0 {
		return nodes
	}
	return e.nodesByName[name]
}

// sitesCallingLocked returns call sites whose callee name matches the
// node's simple or qualified name
func (e *Engine) sitesCallingLocked(node *types.FunctionNode) []*types.CallSite {
	sites := e.sitesByCallee[node.Name]
	if node.QualifiedName != node.Name {
		sites = append(append([]*types.CallSite(nil), sites...), e.sitesByCallee[node.QualifiedName]...)
	}
	return sites
}
