package storage

import (
	"context"
	"time"

	"codelens/pkg/types"
)

// Store defines the persistence contract consumed by the indexing pipeline
// and the query engines: key/filter/vector storage for semantic units plus
// the persisted form of both graphs. Implementations must support
// concurrent readers at all times; the indexer serializes writes per file.
type Store interface {
	// Project operations
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, name string) (*Project, error)
	UpdateProject(ctx context.Context, project *Project) error

	// Index-state operations (owned by the state tracker)
	UpsertFileRecord(ctx context.Context, rec *FileRecord) error
	GetFileRecord(ctx context.Context, projectID int64, filePath string) (*FileRecord, error)
	DeleteFileRecord(ctx context.Context, projectID int64, filePath string) error
	ListFileRecords(ctx context.Context, projectID int64) ([]*FileRecord, error)

	// Unit operations
	UpsertUnit(ctx context.Context, unit *Unit) error
	GetUnit(ctx context.Context, unitID string) (*Unit, error)
	ListUnitsByFile(ctx context.Context, projectID int64, filePath string) ([]*Unit, error)
	DeleteUnitsByFile(ctx context.Context, projectID int64, filePath string) (int, error)
	CountUnits(ctx context.Context, projectID int64) (int, error)
	ScrollUnits(ctx context.Context, projectID int64, filters *SearchFilters, fn func(*Unit) error) error

	// Embedding operations
	UpsertEmbedding(ctx context.Context, emb *Embedding) error
	CountEmbeddings(ctx context.Context, projectID int64) (int, error)

	// Search operations
	SearchVector(ctx context.Context, projectID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)
	SearchText(ctx context.Context, projectID int64, query string, limit int, filters *SearchFilters) ([]TextResult, error)

	// Graph persistence: rows are scoped by file so a re-index can replace
	// one file's slice of each graph atomically inside a transaction.
	UpsertFunctionNode(ctx context.Context, projectID int64, node *types.FunctionNode) error
	UpsertCallSite(ctx context.Context, projectID int64, site *types.CallSite) error
	UpsertImplementation(ctx context.Context, projectID int64, impl *types.InterfaceImplementation) error
	UpsertDependencyEdge(ctx context.Context, projectID int64, edge *types.DependencyEdge) error
	DeleteGraphByFile(ctx context.Context, projectID int64, filePath string) error
	ListFunctionNodes(ctx context.Context, projectID int64) ([]types.FunctionNode, error)
	ListCallSites(ctx context.Context, projectID int64) ([]types.CallSite, error)
	ListImplementations(ctx context.Context, projectID int64) ([]types.InterfaceImplementation, error)
	ListDependencyEdges(ctx context.Context, projectID int64) ([]types.DependencyEdge, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Store // Embed Store interface for transaction operations
}

// Project represents one indexed codebase. All entities are scoped to a
// named project; nothing is shared across projects.
type Project struct {
	ID            int64
	Name          string
	RootPath      string
	TotalFiles    int
	TotalUnits    int
	IndexVersion  string
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FileRecord is the per-file indexing state: content hash and mtime for
// change detection plus bookkeeping counters.
type FileRecord struct {
	ID            int64
	ProjectID     int64
	FilePath      string // Relative to project root
	ContentHash   [32]byte
	ModTime       time.Time
	UnitCount     int
	LastIndexedAt time.Time
}

// Unit is a stored semantic unit row
type Unit struct {
	types.SemanticUnit
	ProjectID int64
}

// Embedding represents a vector embedding for a unit
type Embedding struct {
	ID        int64
	UnitID    string
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
}

// SearchFilters narrows search and scroll results
type SearchFilters struct {
	Languages   []string // Filter by source language
	Kinds       []string // Filter by unit kind (function, class)
	PathPattern string   // Glob pattern for file paths
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	UnitID string
	Score  float64 // Cosine similarity, higher is better
}

// TextResult represents a result from BM25 full-text search
type TextResult struct {
	UnitID string
	Score  float64 // Positive relevance, higher is better
}
