package storage

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codelens/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	// Use in-memory database for testing
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NotNil(t, store)
	return store
}

func testProject(t *testing.T, store *SQLiteStore) *Project {
	t.Helper()
	project := &Project{
		Name:         "testproj",
		RootPath:     "/test/path",
		IndexVersion: CurrentSchemaVersion,
	}
	require.NoError(t, store.CreateProject(context.Background(), project))
	return project
}

func testUnit(projectID int64, filePath, name, qualified string, kind types.UnitKind) *Unit {
	u := &Unit{ProjectID: projectID}
	u.FilePath = filePath
	u.Kind = kind
	u.Name = name
	u.QualifiedName = qualified
	u.Signature = "def " + name + "()"
	u.Content = "def " + name + "():\n    pass"
	u.Language = types.LangPython
	u.StartLine = 1
	u.EndLine = 2
	u.ComputeContentHash()
	u.ID = u.ComputeID("testproj")
	return u
}

func TestNewSQLiteStore(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	assert.NotNil(t, store)
	assert.NotNil(t, store.db)
}

func TestCreateProject(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	project := testProject(t, store)
	assert.Greater(t, project.ID, int64(0))

	// Duplicate name should fail
	duplicate := &Project{Name: "testproj", RootPath: "/other", IndexVersion: "1.0.0"}
	err := store.CreateProject(ctx, duplicate)
	assert.Error(t, err)
}

func TestGetProject_NotFound(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	_, err := store.GetProject(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProject(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	project := testProject(t, store)

	project.TotalFiles = 10
	project.TotalUnits = 100
	project.LastIndexedAt = time.Now()
	require.NoError(t, store.UpdateProject(ctx, project))

	updated, err := store.GetProject(ctx, "testproj")
	require.NoError(t, err)
	assert.Equal(t, 10, updated.TotalFiles)
	assert.Equal(t, 100, updated.TotalUnits)
}

func TestUpsertFileRecord(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	project := testProject(t, store)

	hash := sha256.Sum256([]byte("def foo(): pass"))
	rec := &FileRecord{
		ProjectID:     project.ID,
		FilePath:      "a.py",
		ContentHash:   hash,
		ModTime:       time.Now(),
		UnitCount:     1,
		LastIndexedAt: time.Now(),
	}
	require.NoError(t, store.UpsertFileRecord(ctx, rec))

	got, err := store.GetFileRecord(ctx, project.ID, "a.py")
	require.NoError(t, err)
	assert.Equal(t, hash, got.ContentHash)
	assert.Equal(t, 1, got.UnitCount)

	// Upsert with a new hash updates in place
	rec.ContentHash = sha256.Sum256([]byte("def foo(): return 1"))
	rec.UnitCount = 2
	require.NoError(t, store.UpsertFileRecord(ctx, rec))

	got, err = store.GetFileRecord(ctx, project.ID, "a.py")
	require.NoError(t, err)
	assert.Equal(t, rec.ContentHash, got.ContentHash)
	assert.Equal(t, 2, got.UnitCount)

	records, err := store.ListFileRecords(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDeleteFileRecord(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	project := testProject(t, store)

	rec := &FileRecord{ProjectID: project.ID, FilePath: "a.py"}
	require.NoError(t, store.UpsertFileRecord(ctx, rec))
	require.NoError(t, store.DeleteFileRecord(ctx, project.ID, "a.py"))

	_, err := store.GetFileRecord(ctx, project.ID, "a.py")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertUnit(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	project := testProject(t, store)

	unit := testUnit(project.ID, "a.py", "foo", "foo", types.KindFunction)
	require.NoError(t, store.UpsertUnit(ctx, unit))

	got, err := store.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, "foo", got.Name)
	assert.Equal(t, types.KindFunction, got.Kind)
	assert.Equal(t, unit.ContentHash, got.ContentHash)

	// Same identity with new content keeps the same row
	unit.Content = "def foo():\n    return 1"
	unit.ComputeContentHash()
	require.NoError(t, store.UpsertUnit(ctx, unit))

	n, err := store.CountUnits(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteUnitsByFile(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	project := testProject(t, store)

	require.NoError(t, store.UpsertUnit(ctx, testUnit(project.ID, "a.py", "foo", "foo", types.KindFunction)))
	require.NoError(t, store.UpsertUnit(ctx, testUnit(project.ID, "a.py", "bar", "bar", types.KindFunction)))
	require.NoError(t, store.UpsertUnit(ctx, testUnit(project.ID, "b.py", "baz", "baz", types.KindFunction)))

	n, err := store.DeleteUnitsByFile(ctx, project.ID, "a.py")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining, err := store.ListUnitsByFile(ctx, project.ID, "b.py")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestScrollUnits_Filters(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	project := testProject(t, store)

	fn := testUnit(project.ID, "a.py", "foo", "foo", types.KindFunction)
	cls := testUnit(project.ID, "a.py", "Widget", "Widget", types.KindClass)
	require.NoError(t, store.UpsertUnit(ctx, fn))
	require.NoError(t, store.UpsertUnit(ctx, cls))

	var seen []string
	err := store.ScrollUnits(ctx, project.ID, &SearchFilters{Kinds: []string{"class"}}, func(u *Unit) error {
		seen = append(seen, u.Name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Widget"}, seen)
}

func TestSearchText(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	project := testProject(t, store)

	unit := testUnit(project.ID, "a.py", "parse_config", "parse_config", types.KindFunction)
	unit.Content = "def parse_config(path):\n    return yaml.load(path)"
	unit.ComputeContentHash()
	require.NoError(t, store.UpsertUnit(ctx, unit))

	other := testUnit(project.ID, "b.py", "send_email", "send_email", types.KindFunction)
	require.NoError(t, store.UpsertUnit(ctx, other))

	results, err := store.SearchText(ctx, project.ID, "parse_config", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, unit.ID, results[0].UnitID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestSearchText_EmptyQuery(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	project := testProject(t, store)
	_, err := store.SearchText(context.Background(), project.ID, "", 10, nil)
	assert.ErrorIs(t, err, types.ErrInvalidQuery)
}

func TestSearchVector_Fallback(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	project := testProject(t, store)

	a := testUnit(project.ID, "a.py", "foo", "foo", types.KindFunction)
	b := testUnit(project.ID, "b.py", "bar", "bar", types.KindFunction)
	require.NoError(t, store.UpsertUnit(ctx, a))
	require.NoError(t, store.UpsertUnit(ctx, b))

	require.NoError(t, store.UpsertEmbedding(ctx, &Embedding{
		UnitID: a.ID, Vector: []float32{1, 0, 0}, Dimension: 3, Provider: "local", Model: "test",
	}))
	require.NoError(t, store.UpsertEmbedding(ctx, &Embedding{
		UnitID: b.ID, Vector: []float32{0, 1, 0}, Dimension: 3, Provider: "local", Model: "test",
	}))

	results, err := store.SearchVector(ctx, project.ID, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, a.ID, results[0].UnitID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.InDelta(t, 0.0, results[1].Score, 1e-6)
}

func TestGraphPersistence_RoundTrip(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	project := testProject(t, store)

	node := &types.FunctionNode{
		QualifiedName: "foo", Name: "foo", FilePath: "a.py",
		Language: types.LangPython, StartLine: 1, EndLine: 3,
	}
	require.NoError(t, store.UpsertFunctionNode(ctx, project.ID, node))

	site := &types.CallSite{
		CallerQualifiedName: "foo", CalleeName: "bar",
		CallerFile: "a.py", CallerLine: 2,
	}
	require.NoError(t, store.UpsertCallSite(ctx, project.ID, site))

	impl := &types.InterfaceImplementation{
		TypeName: "Widget", InterfaceName: "Renderable", FilePath: "a.py",
		Language: types.LangPython, Methods: []string{"render", "resize"},
	}
	require.NoError(t, store.UpsertImplementation(ctx, project.ID, impl))

	edge := &types.DependencyEdge{
		SourceFile: "a.py", TargetFile: "b.py",
		ImportKind: types.ImportLocal, ImportedNames: []string{"bar"},
	}
	require.NoError(t, store.UpsertDependencyEdge(ctx, project.ID, edge))

	nodes, err := store.ListFunctionNodes(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "foo", nodes[0].QualifiedName)

	sites, err := store.ListCallSites(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "bar", sites[0].CalleeName)

	impls, err := store.ListImplementations(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, impls, 1)
	assert.Equal(t, []string{"render", "resize"}, impls[0].Methods)

	edges, err := store.ListDependencyEdges(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, types.ImportLocal, edges[0].ImportKind)
}

func TestDeleteGraphByFile(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	project := testProject(t, store)

	require.NoError(t, store.UpsertFunctionNode(ctx, project.ID, &types.FunctionNode{
		QualifiedName: "foo", Name: "foo", FilePath: "a.py", Language: types.LangPython,
	}))
	require.NoError(t, store.UpsertCallSite(ctx, project.ID, &types.CallSite{
		CallerQualifiedName: "foo", CalleeName: "bar", CallerFile: "a.py", CallerLine: 2,
	}))
	require.NoError(t, store.UpsertFunctionNode(ctx, project.ID, &types.FunctionNode{
		QualifiedName: "baz", Name: "baz", FilePath: "b.py", Language: types.LangPython,
	}))

	require.NoError(t, store.DeleteGraphByFile(ctx, project.ID, "a.py"))

	nodes, err := store.ListFunctionNodes(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "baz", nodes[0].QualifiedName)

	sites, err := store.ListCallSites(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, sites)
}

func TestTransaction_Rollback(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	project := testProject(t, store)

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)

	unit := testUnit(project.ID, "a.py", "foo", "foo", types.KindFunction)
	require.NoError(t, tx.UpsertUnit(ctx, unit))
	require.NoError(t, tx.Rollback())

	_, err = store.GetUnit(ctx, unit.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransaction_Commit(t *testing.T) {
	store := setupTestDB(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	project := testProject(t, store)

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)

	unit := testUnit(project.ID, "a.py", "foo", "foo", types.KindFunction)
	require.NoError(t, tx.UpsertUnit(ctx, unit))
	require.NoError(t, tx.Commit())

	got, err := store.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, "foo", got.Name)
}

func TestVectorSerialization(t *testing.T) {
	original := []float32{0.1, -0.5, 3.25, 0}
	blob := SerializeVector(original)
	assert.Len(t, blob, 16)

	restored := DeserializeVector(blob)
	assert.Equal(t, original, restored)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestSanitizeFTSQuery(t *testing.T) {
	assert.Equal(t, "", sanitizeFTSQuery(""))
	assert.Equal(t, `foo \AND bar`, sanitizeFTSQuery("foo AND bar"))
	assert.Equal(t, `\"quoted\"`, sanitizeFTSQuery(`"quoted"`))
	assert.Equal(t, `prefix\*`, sanitizeFTSQuery("prefix*"))
}
