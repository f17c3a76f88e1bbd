package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codelens/internal/callgraph"
	"codelens/internal/depgraph"
	"codelens/internal/embedder"
	"codelens/internal/storage"
	"codelens/pkg/types"
)

// stubParser reads a line-oriented fixture format so indexing tests do
// not depend on grammar bindings:
//
//	def NAME            one function unit
//	call CALLER CALLEE  one call site
//	import MODULE       one dependency edge
//	SYNTAX ERROR        marks the whole file as unparseable
type stubParser struct {
	mu     sync.Mutex
	parsed map[string]int
}

func newStubParser() *stubParser {
	return &stubParser{parsed: make(map[string]int)}
}

func (p *stubParser) Supports(filePath string) bool {
	return strings.HasSuffix(filePath, ".py")
}

func (p *stubParser) parseCount(filePath string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parsed[filePath]
}

func (p *stubParser) Parse(ctx context.Context, filePath string, content []byte) (*types.ParseResult, error) {
	p.mu.Lock()
	p.parsed[filePath]++
	p.mu.Unlock()

	res := &types.ParseResult{FilePath: filePath, Language: types.LangPython}
	for i, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "SYNTAX ERROR":
			res.AddError(filePath, i+1, "syntax error")
			return res, nil
		case strings.HasPrefix(line, "def "):
			name := strings.TrimPrefix(line, "def ")
			unit := types.SemanticUnit{
				Name:          types.SimpleName(name),
				QualifiedName: name,
				Kind:          types.KindFunction,
				FilePath:      filePath,
				Language:      types.LangPython,
				StartLine:     i + 1,
				EndLine:       i + 1,
				Signature:     "def " + name + "()",
				Content:       line,
			}
			unit.ComputeContentHash()
			res.Units = append(res.Units, unit)
		case strings.HasPrefix(line, "call "):
			parts := strings.Fields(strings.TrimPrefix(line, "call "))
			if len(parts) == 2 {
				res.CallSites = append(res.CallSites, types.CallSite{
					CallerQualifiedName: parts[0],
					CalleeName:          parts[1],
					CallerFile:          filePath,
					CallerLine:          i + 1,
				})
			}
		case strings.HasPrefix(line, "import "):
			res.Imports = append(res.Imports, types.DependencyEdge{
				SourceFile: filePath,
				TargetFile: strings.TrimPrefix(line, "import "),
				ImportKind: types.ImportThirdParty,
			})
		}
	}
	return res, nil
}

type testEnv struct {
	idx    *Indexer
	store  *storage.SQLiteStore
	cg     *callgraph.Engine
	dg     *depgraph.Engine
	parser *stubParser
	root   string
	projID int64
}

func setupIndexer(t *testing.T, emb EmbeddingProvider) *testEnv {
	t.Helper()
	root := t.TempDir()

	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	project, err := GetOrCreateProject(context.Background(), store, "testproj", root)
	require.NoError(t, err)

	cg := callgraph.NewEngine()
	dg := depgraph.NewEngine()
	p := newStubParser()
	idx := New(p, store, project, cg, dg, emb, Config{Workers: 2})

	return &testEnv{idx: idx, store: store, cg: cg, dg: dg, parser: p, root: root, projID: project.ID}
}

func (e *testEnv) writeFile(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(e.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIndexFile_Basic(t *testing.T) {
	env := setupIndexer(t, nil)
	env.writeFile(t, "a.py", "def foo\ndef bar\ncall foo bar\nimport requests\n")

	result, err := env.idx.IndexFile(context.Background(), "a.py")
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, result.Status)
	assert.Equal(t, 2, result.UnitsAdded)
	assert.Equal(t, 0, result.UnitsRemoved)

	count, err := env.store.CountUnits(context.Background(), env.projID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	callees, err := env.cg.FindCallees("foo", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, callees.Direct, 1)
	assert.Equal(t, "bar", callees.Direct[0].QualifiedName)

	deps, err := env.dg.GetDependencies("a.py", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "requests", deps[0].FilePath)
}

func TestIndexFile_UnchangedSkipsParse(t *testing.T) {
	env := setupIndexer(t, nil)
	env.writeFile(t, "a.py", "def foo\n")

	_, err := env.idx.IndexFile(context.Background(), "a.py")
	require.NoError(t, err)

	result, err := env.idx.IndexFile(context.Background(), "a.py")
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, result.Status)
	assert.Equal(t, 1, env.parser.parseCount("a.py"))
}

func TestIndexFile_ContentChange(t *testing.T) {
	env := setupIndexer(t, nil)
	env.writeFile(t, "a.py", "def foo\ndef bar\n")

	_, err := env.idx.IndexFile(context.Background(), "a.py")
	require.NoError(t, err)

	env.writeFile(t, "a.py", "def foo\n")
	result, err := env.idx.IndexFile(context.Background(), "a.py")
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, result.Status)
	assert.Equal(t, 1, result.UnitsAdded)
	assert.Equal(t, 2, result.UnitsRemoved)

	count, err := env.store.CountUnits(context.Background(), env.projID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIndexFile_ParseErrorKeepsOldData(t *testing.T) {
	env := setupIndexer(t, nil)
	env.writeFile(t, "a.py", "def foo\n")

	_, err := env.idx.IndexFile(context.Background(), "a.py")
	require.NoError(t, err)

	env.writeFile(t, "a.py", "SYNTAX ERROR\n")
	result, err := env.idx.IndexFile(context.Background(), "a.py")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.NotEmpty(t, result.Reason)

	// The prior good index survives a failed re-parse
	count, err := env.store.CountUnits(context.Background(), env.projID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, env.cg.NodeCount())
}

func TestIndexFile_MissingFile(t *testing.T) {
	env := setupIndexer(t, nil)

	_, err := env.idx.IndexFile(context.Background(), "ghost.py")
	assert.Error(t, err)
}

func TestIndexFile_WithEmbeddings(t *testing.T) {
	pool, err := embedder.NewPool(2, func() (embedder.Embedder, error) {
		return embedder.NewLocalProvider(nil)
	})
	require.NoError(t, err)
	defer func() { _ = pool.Close() }()

	env := setupIndexer(t, pool)
	env.writeFile(t, "a.py", "def foo\ndef bar\n")

	_, err = env.idx.IndexFile(context.Background(), "a.py")
	require.NoError(t, err)

	count, err := env.store.CountEmbeddings(context.Background(), env.projID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// failingEmbedder always errors, for policy tests
type failingEmbedder struct{}

func (failingEmbedder) GenerateBatch(ctx context.Context, texts []string) ([]*embedder.Embedding, error) {
	return nil, errors.New("backend down")
}
func (failingEmbedder) Provider() string { return "test" }
func (failingEmbedder) Model() string    { return "test" }

func TestEmbeddingPolicy_Degrade(t *testing.T) {
	env := setupIndexer(t, failingEmbedder{})
	env.writeFile(t, "a.py", "def foo\n")

	result, err := env.idx.IndexFile(context.Background(), "a.py")
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, result.Status)

	embCount, err := env.store.CountEmbeddings(context.Background(), env.projID)
	require.NoError(t, err)
	assert.Equal(t, 0, embCount)

	unitCount, err := env.store.CountUnits(context.Background(), env.projID)
	require.NoError(t, err)
	assert.Equal(t, 1, unitCount)
}

func TestEmbeddingPolicy_Abort(t *testing.T) {
	root := t.TempDir()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	project, err := GetOrCreateProject(context.Background(), store, "testproj", root)
	require.NoError(t, err)

	idx := New(newStubParser(), store, project, callgraph.NewEngine(), depgraph.NewEngine(),
		failingEmbedder{}, Config{EmbeddingPolicy: PolicyAbort})

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("def foo\n"), 0o644))
	_, err = idx.IndexFile(context.Background(), "a.py")
	assert.ErrorIs(t, err, types.ErrEmbeddingUnavailable)
}

func TestRemoveFile(t *testing.T) {
	env := setupIndexer(t, nil)
	env.writeFile(t, "a.py", "def foo\ncall foo bar\nimport requests\n")

	_, err := env.idx.IndexFile(context.Background(), "a.py")
	require.NoError(t, err)

	result, err := env.idx.RemoveFile(context.Background(), "a.py")
	require.NoError(t, err)
	assert.Equal(t, 1, result.UnitsRemoved)

	count, err := env.store.CountUnits(context.Background(), env.projID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, env.cg.NodeCount())

	deps, err := env.dg.GetDependencies("a.py", false, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, deps)

	records, err := env.store.ListFileRecords(context.Background(), env.projID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestIndexDirectory(t *testing.T) {
	env := setupIndexer(t, nil)
	env.writeFile(t, "a.py", "def foo\n")
	env.writeFile(t, "sub/b.py", "def bar\n")
	env.writeFile(t, "bad.py", "SYNTAX ERROR\n")
	env.writeFile(t, "notes.txt", "not source\n")
	env.writeFile(t, "node_modules/dep.py", "def hidden\n")
	env.writeFile(t, ".hidden/c.py", "def hidden\n")

	summary, err := env.idx.IndexDirectory(context.Background(), ".", true)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.FilesIndexed)
	assert.Equal(t, 1, summary.FilesSkipped)
	assert.Equal(t, 0, summary.FilesFailed)
	assert.Equal(t, 2, summary.UnitsAdded)
	assert.Len(t, summary.Errors, 1)

	// Project counters refreshed after the batch
	project, err := env.store.GetProject(context.Background(), "testproj")
	require.NoError(t, err)
	assert.Equal(t, 2, project.TotalUnits)
	assert.False(t, project.LastIndexedAt.IsZero())
}

func TestIndexDirectory_Gitignore(t *testing.T) {
	env := setupIndexer(t, nil)
	env.writeFile(t, ".gitignore", "generated/\n")
	env.writeFile(t, "a.py", "def foo\n")
	env.writeFile(t, "generated/gen.py", "def gen\n")

	summary, err := env.idx.IndexDirectory(context.Background(), ".", true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesIndexed)
}

func TestIndexDirectory_NonRecursive(t *testing.T) {
	env := setupIndexer(t, nil)
	env.writeFile(t, "a.py", "def foo\n")
	env.writeFile(t, "sub/b.py", "def bar\n")

	summary, err := env.idx.IndexDirectory(context.Background(), ".", false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesIndexed)
}

func TestIndexDirectory_AlreadyRunning(t *testing.T) {
	env := setupIndexer(t, nil)

	require.True(t, env.idx.indexLock.TryAcquire())
	defer env.idx.indexLock.Release()

	_, err := env.idx.IndexDirectory(context.Background(), ".", true)
	assert.ErrorIs(t, err, ErrIndexInProgress)
}

func TestIndexDirectory_Incremental(t *testing.T) {
	env := setupIndexer(t, nil)
	env.writeFile(t, "a.py", "def foo\n")
	env.writeFile(t, "b.py", "def bar\n")

	_, err := env.idx.IndexDirectory(context.Background(), ".", true)
	require.NoError(t, err)

	env.writeFile(t, "b.py", "def bar\ndef baz\n")
	summary, err := env.idx.IndexDirectory(context.Background(), ".", true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesIndexed)
	assert.Equal(t, 1, summary.FilesUnchanged)
}

func TestIndexFile_InvalidatesSearchCache(t *testing.T) {
	env := setupIndexer(t, nil)
	env.writeFile(t, "a.py", "def foo\n")

	fired := 0
	env.idx.OnInvalidate(func() { fired++ })

	_, err := env.idx.IndexFile(context.Background(), "a.py")
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	// Unchanged files do not invalidate
	_, err = env.idx.IndexFile(context.Background(), "a.py")
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
}

func TestGetOrCreateProject_Idempotent(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	a, err := GetOrCreateProject(context.Background(), store, "p", "/tmp/p")
	require.NoError(t, err)
	b, err := GetOrCreateProject(context.Background(), store, "p", "/tmp/p")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
}
