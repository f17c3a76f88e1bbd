// Package indexer orchestrates the incremental indexing pipeline:
// change detection, parsing, embedding, storage writes, and graph
// engine updates.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	gitignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"codelens/internal/callgraph"
	"codelens/internal/depgraph"
	"codelens/internal/embedder"
	"codelens/internal/parser"
	"codelens/internal/storage"
	"codelens/internal/tracker"
	"codelens/pkg/types"
)

// ErrIndexInProgress is returned when a directory index is requested
// while another one is still running for the same project
var ErrIndexInProgress = errors.New("directory index already in progress")

// EmbeddingPolicy controls behavior when the embedding backend fails
type EmbeddingPolicy string

const (
	// PolicyDegrade indexes metadata without vectors on embedding
	// failure; semantic search quality degrades but indexing continues
	PolicyDegrade EmbeddingPolicy = "degrade"

	// PolicyAbort fails the file's indexing attempt on embedding failure
	PolicyAbort EmbeddingPolicy = "abort"
)

// EmbeddingProvider is the slice of the embedding pool the indexer
// needs. A nil provider disables vector generation entirely.
type EmbeddingProvider interface {
	GenerateBatch(ctx context.Context, texts []string) ([]*embedder.Embedding, error)
	Provider() string
	Model() string
}

// Config tunes indexing behavior
type Config struct {
	Workers         int             // Concurrent files during directory indexing (default: NumCPU)
	EmbeddingPolicy EmbeddingPolicy // Default: degrade
}

// FileStatus classifies the outcome of one file's indexing attempt
type FileStatus string

const (
	StatusIndexed   FileStatus = "indexed"
	StatusUnchanged FileStatus = "unchanged"
	StatusSkipped   FileStatus = "skipped" // Parse error
	StatusFailed    FileStatus = "failed"  // Storage or embedding error
)

// FileResult reports the outcome of indexing one file
type FileResult struct {
	FilePath     string
	Status       FileStatus
	Reason       string
	UnitsAdded   int
	UnitsRemoved int
}

// Summary aggregates a directory indexing run. Partial success is the
// expected common case: parse errors and storage failures are counted,
// not raised.
type Summary struct {
	FilesIndexed   int
	FilesUnchanged int
	FilesSkipped   int
	FilesFailed    int
	UnitsAdded     int
	UnitsRemoved   int
	Errors         []string
	Duration       time.Duration
}

// Indexer is the single writer for a project's units, embeddings and
// graph structures. Writes are serialized per file path; queries read
// the engines concurrently at all times.
type Indexer struct {
	parser    parser.Parser
	store     storage.Store
	project   *storage.Project
	tracker   *tracker.Tracker
	callGraph *callgraph.Engine
	depGraph  *depgraph.Engine
	embedder  EmbeddingProvider
	resolver  *resolver

	locks     *pathLocks
	indexLock IndexLock

	workers int
	policy  EmbeddingPolicy

	// onInvalidate is called after any successful write so the search
	// layer can drop cached results for this project
	onInvalidate func()
}

// New creates an indexer bound to one project
func New(p parser.Parser, store storage.Store, project *storage.Project, cg *callgraph.Engine, dg *depgraph.Engine, emb EmbeddingProvider, cfg Config) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.EmbeddingPolicy == "" {
		cfg.EmbeddingPolicy = PolicyDegrade
	}
	return &Indexer{
		parser:    p,
		store:     store,
		project:   project,
		tracker:   tracker.New(store, project.ID),
		callGraph: cg,
		depGraph:  dg,
		embedder:  emb,
		resolver:  newResolver(project.RootPath),
		locks:     newPathLocks(),
		workers:   cfg.Workers,
		policy:    cfg.EmbeddingPolicy,
	}
}

// OnInvalidate registers a callback fired after every successful write
func (idx *Indexer) OnInvalidate(fn func()) {
	idx.onInvalidate = fn
}

func (idx *Indexer) invalidate() {
	if idx.onInvalidate != nil {
		idx.onInvalidate()
	}
}

// relPath normalizes a file path to be project-relative
func (idx *Indexer) relPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(idx.project.RootPath, path)
		if err != nil {
			return "", fmt.Errorf("path outside project root: %w", err)
		}
		return filepath.ToSlash(rel), nil
	}
	return filepath.ToSlash(filepath.Clean(path)), nil
}

// IndexFile indexes a single file through the full pipeline. The
// delete-then-insert write is transactional and the in-memory engines
// are swapped per file, so readers see the old or new state, never a
// mixture. The tracker record is written inside the same transaction,
// last, so a crash mid-file leaves the file marked for reindexing.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (*FileResult, error) {
	rel, err := idx.relPath(path)
	if err != nil {
		return nil, err
	}
	release := idx.locks.acquire(rel)
	defer release()

	absPath := filepath.Join(idx.project.RootPath, filepath.FromSlash(rel))
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", rel, err)
	}
	mtime := info.ModTime()

	decision, err := idx.tracker.ShouldReindex(ctx, rel, content, mtime)
	if err != nil {
		return nil, err
	}
	if !decision.Reindex {
		if decision.Reason == "mtime-only" {
			if err := idx.tracker.RecordTouched(ctx, rel, mtime); err != nil {
				return nil, err
			}
		}
		return &FileResult{FilePath: rel, Status: StatusUnchanged, Reason: decision.Reason}, nil
	}

	res, err := idx.parser.Parse(ctx, rel, content)
	if err != nil {
		if errors.Is(err, types.ErrParseFailure) {
			log.Printf("skipping %s: %v", rel, err)
			return &FileResult{FilePath: rel, Status: StatusSkipped, Reason: err.Error()}, nil
		}
		return nil, err
	}
	if res.HasErrors() {
		log.Printf("skipping %s: %s", rel, res.Errors[0].Message)
		return &FileResult{FilePath: rel, Status: StatusSkipped, Reason: res.Errors[0].Message}, nil
	}

	for i := range res.Units {
		res.Units[i].ID = res.Units[i].ComputeID(idx.project.Name)
	}
	nodes := functionNodes(res)
	for i := range res.Imports {
		idx.resolver.resolve(&res.Imports[i], rel, res.Language)
	}

	embeddings, err := idx.embedUnits(ctx, res.Units)
	if err != nil {
		return nil, err
	}

	removed, err := idx.writeFile(ctx, rel, content, mtime, res, embeddings)
	if err != nil {
		return nil, err
	}

	idx.callGraph.ReplaceFile(rel, nodes, res.CallSites, res.Implementations)
	idx.depGraph.ReplaceFile(rel, res.Imports)
	idx.invalidate()

	return &FileResult{
		FilePath:     rel,
		Status:       StatusIndexed,
		UnitsAdded:   len(res.Units),
		UnitsRemoved: removed,
	}, nil
}

// embedUnits generates vectors for the units' content, honoring the
// configured failure policy
func (idx *Indexer) embedUnits(ctx context.Context, units []types.SemanticUnit) ([]*embedder.Embedding, error) {
	if idx.embedder == nil || len(units) == 0 {
		return nil, nil
	}
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Content
	}
	embeddings, err := idx.embedder.GenerateBatch(ctx, texts)
	if err != nil {
		if idx.policy == PolicyAbort {
			return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingUnavailable, err)
		}
		log.Printf("warning: embedding unavailable, indexing %d units without vectors: %v", len(units), err)
		return nil, nil
	}
	return embeddings, nil
}

// writeFile performs the transactional delete-then-insert for one file
func (idx *Indexer) writeFile(ctx context.Context, rel string, content []byte, mtime time.Time, res *types.ParseResult, embeddings []*embedder.Embedding) (int, error) {
	tx, err := idx.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	removed, err := tx.DeleteUnitsByFile(ctx, idx.project.ID, rel)
	if err != nil {
		return 0, err
	}
	if err := tx.DeleteGraphByFile(ctx, idx.project.ID, rel); err != nil {
		return 0, err
	}

	for i := range res.Units {
		unit := &storage.Unit{SemanticUnit: res.Units[i], ProjectID: idx.project.ID}
		if err := tx.UpsertUnit(ctx, unit); err != nil {
			return 0, err
		}
		if embeddings != nil && i < len(embeddings) && embeddings[i] != nil {
			emb := &storage.Embedding{
				UnitID:    unit.ID,
				Vector:    embeddings[i].Vector,
				Dimension: embeddings[i].Dimension,
				Provider:  embeddings[i].Provider,
				Model:     embeddings[i].Model,
			}
			if err := tx.UpsertEmbedding(ctx, emb); err != nil {
				return 0, err
			}
		}
	}

	for i := range res.Units {
		if res.Units[i].Kind != types.KindFunction {
			continue
		}
		node := nodeFromUnit(&res.Units[i])
		if err := tx.UpsertFunctionNode(ctx, idx.project.ID, &node); err != nil {
			return 0, err
		}
	}
	for i := range res.CallSites {
		if err := tx.UpsertCallSite(ctx, idx.project.ID, &res.CallSites[i]); err != nil {
			return 0, err
		}
	}
	for i := range res.Implementations {
		if err := tx.UpsertImplementation(ctx, idx.project.ID, &res.Implementations[i]); err != nil {
			return 0, err
		}
	}
	for i := range res.Imports {
		if err := tx.UpsertDependencyEdge(ctx, idx.project.ID, &res.Imports[i]); err != nil {
			return 0, err
		}
	}

	// Tracker state goes last so a crash before commit leaves the file
	// marked as needing reindex
	if err := idx.tracker.RecordIndexed(ctx, tx, rel, content, mtime, len(res.Units)); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit failed: %v", types.ErrStorageUnavailable, err)
	}
	return removed, nil
}

// RemoveFile deletes all indexed data for a file
func (idx *Indexer) RemoveFile(ctx context.Context, path string) (*FileResult, error) {
	rel, err := idx.relPath(path)
	if err != nil {
		return nil, err
	}
	release := idx.locks.acquire(rel)
	defer release()

	tx, err := idx.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	removed, err := tx.DeleteUnitsByFile(ctx, idx.project.ID, rel)
	if err != nil {
		return nil, err
	}
	if err := tx.DeleteGraphByFile(ctx, idx.project.ID, rel); err != nil {
		return nil, err
	}
	if err := tx.DeleteFileRecord(ctx, idx.project.ID, rel); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit failed: %v", types.ErrStorageUnavailable, err)
	}

	idx.callGraph.RemoveFile(rel)
	idx.depGraph.RemoveFile(rel)
	idx.invalidate()

	return &FileResult{FilePath: rel, Status: StatusIndexed, UnitsRemoved: removed}, nil
}

// IndexDirectory walks a directory under the project root and indexes
// every supported file. Files are processed concurrently; per-file
// failures are aggregated into the summary, never raised. Cancellation
// is checked at file boundaries: an in-flight file always completes or
// fully fails.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, recursive bool) (*Summary, error) {
	if !idx.indexLock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.indexLock.Release()

	start := time.Now()

	relDir, err := idx.relPath(dir)
	if err != nil {
		return nil, err
	}
	absDir := filepath.Join(idx.project.RootPath, filepath.FromSlash(relDir))
	if info, err := os.Stat(absDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("directory does not exist: %s", dir)
	}

	files, err := idx.discoverFiles(absDir, recursive)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	summary := &Summary{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for _, file := range files {
		file := file
		g.Go(func() error {
			// Cooperative cancellation between files only
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := idx.IndexFile(gctx, file)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.FilesFailed++
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", file, err))
				return nil // Per-file failures never abort the batch
			}
			switch result.Status {
			case StatusIndexed:
				summary.FilesIndexed++
				summary.UnitsAdded += result.UnitsAdded
				summary.UnitsRemoved += result.UnitsRemoved
			case StatusUnchanged:
				summary.FilesUnchanged++
			case StatusSkipped:
				summary.FilesSkipped++
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", result.FilePath, result.Reason))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	if err := idx.updateProjectStats(ctx); err != nil {
		return summary, err
	}

	summary.Duration = time.Since(start)
	return summary, nil
}

// skipDirs are never descended into during discovery
var skipDirs = map[string]bool{
	"vendor":       true,
	"node_modules": true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
}

// discoverFiles finds supported source files under dir, honoring the
// project's .gitignore and skipping hidden and dependency directories
func (idx *Indexer) discoverFiles(absDir string, recursive bool) ([]string, error) {
	var ignore *gitignore.GitIgnore
	if gi, err := gitignore.CompileIgnoreFile(filepath.Join(idx.project.RootPath, ".gitignore")); err == nil {
		ignore = gi
	}

	var files []string
	err := filepath.WalkDir(absDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == absDir {
				return nil
			}
			if !recursive {
				return filepath.SkipDir
			}
			if strings.HasPrefix(d.Name(), ".") || skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if !idx.parser.Supports(path) {
			return nil
		}
		rel, err := filepath.Rel(idx.project.RootPath, path)
		if err != nil {
			return err
		}
		if ignore != nil && ignore.MatchesPath(rel) {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}

// updateProjectStats refreshes the project's counters after a batch
func (idx *Indexer) updateProjectStats(ctx context.Context) error {
	records, err := idx.store.ListFileRecords(ctx, idx.project.ID)
	if err != nil {
		return err
	}
	units, err := idx.store.CountUnits(ctx, idx.project.ID)
	if err != nil {
		return err
	}
	idx.project.TotalFiles = len(records)
	idx.project.TotalUnits = units
	idx.project.LastIndexedAt = time.Now()
	return idx.store.UpdateProject(ctx, idx.project)
}

// functionNodes derives call-graph vertices from function units
func functionNodes(res *types.ParseResult) []types.FunctionNode {
	var nodes []types.FunctionNode
	for i := range res.Units {
		if res.Units[i].Kind != types.KindFunction {
			continue
		}
		nodes = append(nodes, nodeFromUnit(&res.Units[i]))
	}
	return nodes
}

func nodeFromUnit(u *types.SemanticUnit) types.FunctionNode {
	return types.FunctionNode{
		QualifiedName: u.QualifiedName,
		Name:          u.Name,
		FilePath:      u.FilePath,
		Language:      u.Language,
		StartLine:     u.StartLine,
		EndLine:       u.EndLine,
		IsAsync:       u.IsAsync,
	}
}

// GetOrCreateProject loads a project by name, creating it on first use
func GetOrCreateProject(ctx context.Context, store storage.Store, name, rootPath string) (*storage.Project, error) {
	project, err := store.GetProject(ctx, name)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	project = &storage.Project{
		Name:         name,
		RootPath:     rootPath,
		IndexVersion: storage.CurrentSchemaVersion,
	}
	if err := store.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}
