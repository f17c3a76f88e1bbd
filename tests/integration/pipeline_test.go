package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"codelens/internal/callgraph"
	"codelens/internal/depgraph"
	"codelens/internal/embedder"
	"codelens/internal/indexer"
	"codelens/internal/parser"
	"codelens/internal/searcher"
	"codelens/internal/storage"
	"codelens/internal/watcher"
)

// PipelineTestSuite exercises the full pipeline: parsing real source,
// storage writes, graph updates, and queries.
type PipelineTestSuite struct {
	suite.Suite
	ctx       context.Context
	root      string
	store     *storage.SQLiteStore
	project   *storage.Project
	callGraph *callgraph.Engine
	depGraph  *depgraph.Engine
	pool      *embedder.Pool
	indexer   *indexer.Indexer
	searcher  *searcher.Searcher
}

func (s *PipelineTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.root = s.T().TempDir()

	store, err := storage.NewSQLiteStore(":memory:")
	s.Require().NoError(err)
	s.store = store

	s.project, err = indexer.GetOrCreateProject(s.ctx, store, "integration", s.root)
	s.Require().NoError(err)

	s.callGraph = callgraph.NewEngine()
	s.depGraph = depgraph.NewEngine()

	s.pool, err = embedder.NewPool(2, func() (embedder.Embedder, error) {
		return embedder.NewLocalProvider(embedder.NewCache(100))
	})
	s.Require().NoError(err)

	s.indexer = indexer.New(parser.New(), store, s.project, s.callGraph, s.depGraph, s.pool, indexer.Config{Workers: 2})

	queryEmb, err := embedder.NewLocalProvider(nil)
	s.Require().NoError(err)
	s.searcher = searcher.New(store, queryEmb, s.project.ID)
	s.indexer.OnInvalidate(s.searcher.InvalidateProject)
}

func (s *PipelineTestSuite) TearDownTest() {
	_ = s.pool.Close()
	_ = s.store.Close()
}

func (s *PipelineTestSuite) write(rel, content string) {
	path := filepath.Join(s.root, rel)
	s.Require().NoError(os.MkdirAll(filepath.Dir(path), 0o755))
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
}

func (s *PipelineTestSuite) TestBasicIndexAndQuery() {
	s.write("a.py", "def foo():\n    bar()\n")
	s.write("b.py", "def bar():\n    pass\n")

	summary, err := s.indexer.IndexDirectory(s.ctx, ".", true)
	s.Require().NoError(err)
	s.Equal(2, summary.FilesIndexed)
	s.Equal(2, summary.UnitsAdded)

	callees, err := s.callGraph.FindCallees("foo", false, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(callees.Direct, 1)
	s.Equal("bar", callees.Direct[0].QualifiedName)

	callers, err := s.callGraph.FindCallers("bar", false, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(callers.Direct, 1)
	s.Equal("foo", callers.Direct[0].QualifiedName)
}

func (s *PipelineTestSuite) TestDeletion() {
	s.write("a.py", "def foo():\n    bar()\n")
	s.write("b.py", "def bar():\n    pass\n")

	_, err := s.indexer.IndexDirectory(s.ctx, ".", true)
	s.Require().NoError(err)

	_, err = s.indexer.RemoveFile(s.ctx, "a.py")
	s.Require().NoError(err)

	callees, err := s.callGraph.FindCallees("foo", false, 0, 0)
	s.Require().NoError(err)
	s.Zero(callees.TotalCount)

	callers, err := s.callGraph.FindCallers("bar", false, 0, 0)
	s.Require().NoError(err)
	s.Zero(callers.TotalCount)
}

func (s *PipelineTestSuite) TestMutualRecursionChain() {
	s.write("a.py", "def x():\n    y()\n\ndef y():\n    x()\n")

	_, err := s.indexer.IndexDirectory(s.ctx, ".", true)
	s.Require().NoError(err)

	done := make(chan struct{})
	var chains []callgraph.CallChain
	go func() {
		defer close(done)
		chains, err = s.callGraph.GetCallChain("x", "y", 5, 5)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		s.FailNow("call chain enumeration did not terminate")
	}
	s.Require().NoError(err)
	s.Require().NotEmpty(chains)
	s.Equal([]string{"x", "y"}, chains[0].Path)
}

func (s *PipelineTestSuite) TestIdempotentReindex() {
	s.write("a.py", "def foo():\n    pass\n")

	first, err := s.indexer.IndexDirectory(s.ctx, ".", true)
	s.Require().NoError(err)
	s.Equal(1, first.FilesIndexed)

	second, err := s.indexer.IndexDirectory(s.ctx, ".", true)
	s.Require().NoError(err)
	s.Zero(second.FilesIndexed)
	s.Equal(1, second.FilesUnchanged)
	s.Zero(second.UnitsAdded)
}

func (s *PipelineTestSuite) TestAtomicReplaceOnEdit() {
	s.write("a.py", "def old_one():\n    pass\n\ndef old_two():\n    pass\n")
	_, err := s.indexer.IndexDirectory(s.ctx, ".", true)
	s.Require().NoError(err)

	s.write("a.py", "def brand_new():\n    pass\n")
	result, err := s.indexer.IndexFile(s.ctx, "a.py")
	s.Require().NoError(err)
	s.Equal(1, result.UnitsAdded)
	s.Equal(2, result.UnitsRemoved)

	var names []string
	err = s.store.ScrollUnits(s.ctx, s.project.ID, nil, func(unit *storage.Unit) error {
		names = append(names, unit.Name)
		return nil
	})
	s.Require().NoError(err)
	s.Equal([]string{"brand_new"}, names)
}

func (s *PipelineTestSuite) TestDependencyQueries() {
	s.write("app.py", "import service\n")
	s.write("service.py", "import db\n")
	s.write("db.py", "import sqlite3\n")

	_, err := s.indexer.IndexDirectory(s.ctx, ".", true)
	s.Require().NoError(err)

	deps, err := s.depGraph.GetDependencies("app.py", true, 0, 0)
	s.Require().NoError(err)
	files := make(map[string]int)
	for _, d := range deps {
		files[d.FilePath] = d.Depth
	}
	s.Equal(1, files["service.py"])
	s.Equal(2, files["db.py"])

	path, err := s.depGraph.FindPath("app.py", "db.py", 0)
	s.Require().NoError(err)
	s.Equal([]string{"app.py", "service.py", "db.py"}, path)

	dependents, err := s.depGraph.GetDependents("db.py", false, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(dependents, 1)
	s.Equal("service.py", dependents[0].FilePath)
}

func (s *PipelineTestSuite) TestHybridSearchDeterminism() {
	s.write("a.py", "def parse_config():\n    return load('config')\n")
	s.write("b.py", "def send_mail():\n    deliver()\n")

	_, err := s.indexer.IndexDirectory(s.ctx, ".", true)
	s.Require().NoError(err)

	req := searcher.Request{Query: "parse config", Mode: searcher.ModeHybrid}
	first, err := s.searcher.Search(s.ctx, req)
	s.Require().NoError(err)
	s.Require().NotEmpty(first.Results)
	s.Equal("parse_config", first.Results[0].Unit.Name)

	second, err := s.searcher.Search(s.ctx, req)
	s.Require().NoError(err)
	s.Require().Equal(len(first.Results), len(second.Results))
	for i := range first.Results {
		s.Equal(first.Results[i].UnitID, second.Results[i].UnitID)
	}
}

func (s *PipelineTestSuite) TestSearchCacheInvalidatedByIndexing() {
	s.write("a.py", "def locate_target():\n    pass\n")
	_, err := s.indexer.IndexDirectory(s.ctx, ".", true)
	s.Require().NoError(err)

	req := searcher.Request{Query: "locate_target", Mode: searcher.ModeKeyword, UseCache: true}
	_, err = s.searcher.Search(s.ctx, req)
	s.Require().NoError(err)
	s.Equal(1, s.searcher.CacheLen())

	s.write("a.py", "def locate_target():\n    pass\n\ndef extra():\n    pass\n")
	_, err = s.indexer.IndexFile(s.ctx, "a.py")
	s.Require().NoError(err)
	s.Zero(s.searcher.CacheLen())
}

func (s *PipelineTestSuite) TestWatcherDrivesReindex() {
	w, err := watcher.New(s.root, &indexerHandler{idx: s.indexer}, func(path string) bool {
		return filepath.Ext(path) == ".py"
	}, 50*time.Millisecond)
	s.Require().NoError(err)
	s.Require().NoError(w.Start(s.ctx))
	defer func() { _ = w.Close() }()

	s.write("live.py", "def fresh():\n    pass\n")

	s.Require().Eventually(func() bool {
		callers, err := s.callGraph.FindCallers("fresh", false, 0, 0)
		return err == nil && s.callGraph.NodeCount() == 1 && callers.TotalCount == 0
	}, 5*time.Second, 50*time.Millisecond)
}

type indexerHandler struct {
	idx *indexer.Indexer
}

func (h *indexerHandler) IndexFile(ctx context.Context, path string) error {
	_, err := h.idx.IndexFile(ctx, path)
	return err
}

func (h *indexerHandler) RemoveFile(ctx context.Context, path string) error {
	_, err := h.idx.RemoveFile(ctx, path)
	return err
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}
