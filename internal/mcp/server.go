// Package mcp exposes the index over the Model Context Protocol. One
// server instance is bound to one project root; graph engines are
// loaded from storage at startup so queries work before any reindex.
package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"codelens/internal/callgraph"
	"codelens/internal/depgraph"
	"codelens/internal/embedder"
	"codelens/internal/indexer"
	"codelens/internal/parser"
	"codelens/internal/searcher"
	"codelens/internal/storage"
	"codelens/internal/watcher"
)

const (
	// ServerName is the MCP server name
	ServerName = "codelens"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Config configures a server instance
type Config struct {
	DBPath   string // Default: <root>/.codelens/index.db
	RootPath string // Project root, must be absolute
	Workers  int    // Embedding pool and directory indexing concurrency
	Watch    bool   // Keep the index current via file system events

	// AbortOnEmbedFailure fails file indexing when the embedding backend
	// is down instead of indexing metadata without vectors
	AbortOnEmbedFailure bool
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	store    storage.Store
	project  *storage.Project
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	parser   *parser.TreeSitterParser

	callGraph *callgraph.Engine
	depGraph  *depgraph.Engine

	pool     *embedder.Pool
	queryEmb embedder.Embedder
	watcher  *watcher.Watcher
}

// NewServer creates a server bound to the project at cfg.RootPath
func NewServer(cfg Config) (*Server, error) {
	root, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("invalid root path: %w", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project root is not a directory: %s", root)
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dir := filepath.Join(root, ".codelens")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		dbPath = filepath.Join(dir, "index.db")
	}

	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ctx := context.Background()
	project, err := indexer.GetOrCreateProject(ctx, store, filepath.Base(root), root)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	cg := callgraph.NewEngine()
	if err := cg.Load(ctx, store, project.ID); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load call graph: %w", err)
	}
	dg := depgraph.NewEngine()
	if err := dg.Load(ctx, store, project.ID); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load dependency graph: %w", err)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	pool, err := embedder.NewPool(workers, embedder.NewFromEnv)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedding pool: %w", err)
	}
	queryEmb, err := embedder.NewFromEnv()
	if err != nil {
		_ = pool.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize query embedder: %w", err)
	}

	p := parser.New()

	policy := indexer.PolicyDegrade
	if cfg.AbortOnEmbedFailure {
		policy = indexer.PolicyAbort
	}
	idx := indexer.New(p, store, project, cg, dg, pool, indexer.Config{
		Workers:         workers,
		EmbeddingPolicy: policy,
	})
	srch := searcher.New(store, queryEmb, project.ID)
	idx.OnInvalidate(srch.InvalidateProject)

	s := &Server{
		mcp:       server.NewMCPServer(ServerName, ServerVersion),
		store:     store,
		project:   project,
		indexer:   idx,
		searcher:  srch,
		parser:    p,
		callGraph: cg,
		depGraph:  dg,
		pool:      pool,
		queryEmb:  queryEmb,
	}
	s.registerTools()

	if cfg.Watch {
		w, err := watcher.New(root, &watchHandler{idx: idx}, p.Supports, 0)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
		s.watcher = w
	}
	return s, nil
}

// watchHandler adapts the indexer to the watcher's Handler interface
type watchHandler struct {
	idx *indexer.Indexer
}

func (h *watchHandler) IndexFile(ctx context.Context, path string) error {
	_, err := h.idx.IndexFile(ctx, path)
	return err
}

func (h *watchHandler) RemoveFile(ctx context.Context, path string) error {
	_, err := h.idx.RemoveFile(ctx, path)
	return err
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	if s.watcher != nil {
		if err := s.watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
	}
	defer func() { _ = s.Close() }()
	return server.ServeStdio(s.mcp)
}

// Close releases all server resources
func (s *Server) Close() error {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	if s.pool != nil {
		_ = s.pool.Close()
	}
	if s.queryEmb != nil {
		_ = s.queryEmb.Close()
	}
	return s.store.Close()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexDirectoryTool(), s.handleIndexDirectory)
	s.mcp.AddTool(indexFileTool(), s.handleIndexFile)
	s.mcp.AddTool(removeFileTool(), s.handleRemoveFile)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(findCallersTool(), s.handleFindCallers)
	s.mcp.AddTool(findCalleesTool(), s.handleFindCallees)
	s.mcp.AddTool(getCallChainTool(), s.handleGetCallChain)
	s.mcp.AddTool(findImplementationsTool(), s.handleFindImplementations)
	s.mcp.AddTool(getDependenciesTool(), s.handleGetDependencies)
	s.mcp.AddTool(getDependentsTool(), s.handleGetDependents)
	s.mcp.AddTool(findDependencyPathTool(), s.handleFindDependencyPath)
	s.mcp.AddTool(getDependencyStatsTool(), s.handleGetDependencyStats)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
