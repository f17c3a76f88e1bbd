package depgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codelens/internal/storage"
	"codelens/pkg/types"
)

func localEdge(source, target string, names ...string) types.DependencyEdge {
	return types.DependencyEdge{
		SourceFile:    source,
		TargetFile:    target,
		ImportKind:    types.ImportLocal,
		ImportedNames: names,
	}
}

// buildChain wires app.py -> service.py -> db.py, with a third-party
// import hanging off service.py
func buildChain() *Engine {
	e := NewEngine()
	e.ReplaceFile("app.py", []types.DependencyEdge{localEdge("app.py", "service.py", "Service")})
	e.ReplaceFile("service.py", []types.DependencyEdge{
		localEdge("service.py", "db.py", "connect"),
		{SourceFile: "service.py", TargetFile: "requests", ImportKind: types.ImportThirdParty},
	})
	return e
}

func TestGetDependencies_Direct(t *testing.T) {
	e := buildChain()

	deps, err := e.GetDependencies("service.py", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, deps, 2)

	paths := []string{deps[0].FilePath, deps[1].FilePath}
	assert.Contains(t, paths, "db.py")
	assert.Contains(t, paths, "requests")
}

func TestGetDependencies_Transitive(t *testing.T) {
	e := buildChain()

	deps, err := e.GetDependencies("app.py", true, 5, 0)
	require.NoError(t, err)
	require.Len(t, deps, 3)
	assert.Equal(t, "service.py", deps[0].FilePath)
	assert.Equal(t, 1, deps[0].Depth)

	byPath := map[string]int{}
	for _, d := range deps {
		byPath[d.FilePath] = d.Depth
	}
	assert.Equal(t, 2, byPath["db.py"])
	assert.Equal(t, 2, byPath["requests"])
}

func TestGetDependencies_ThirdPartyIsLeaf(t *testing.T) {
	// requests must never be expanded even if an edge claims to leave it
	e := buildChain()
	e.ReplaceFile("requests", []types.DependencyEdge{localEdge("requests", "phantom.py")})

	deps, err := e.GetDependencies("service.py", true, 5, 0)
	require.NoError(t, err)
	for _, d := range deps {
		assert.NotEqual(t, "phantom.py", d.FilePath)
	}
}

func TestGetDependents(t *testing.T) {
	e := buildChain()

	direct, err := e.GetDependents("db.py", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, direct, 1)
	assert.Equal(t, "service.py", direct[0].FilePath)

	transitive, err := e.GetDependents("db.py", true, 5, 0)
	require.NoError(t, err)
	require.Len(t, transitive, 2)
	assert.Equal(t, "app.py", transitive[1].FilePath)
	assert.Equal(t, 2, transitive[1].Depth)
}

func TestGetDependents_ThirdPartyNotTracked(t *testing.T) {
	e := buildChain()

	deps, err := e.GetDependents("requests", false, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestTraversal_CycleTerminates(t *testing.T) {
	e := NewEngine()
	e.ReplaceFile("a.py", []types.DependencyEdge{localEdge("a.py", "b.py")})
	e.ReplaceFile("b.py", []types.DependencyEdge{localEdge("b.py", "a.py")})

	deps, err := e.GetDependencies("a.py", true, 10, 0)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "b.py", deps[0].FilePath)
}

func TestInvalidParams(t *testing.T) {
	e := buildChain()

	_, err := e.GetDependencies("", false, 0, 0)
	assert.ErrorIs(t, err, types.ErrInvalidQuery)

	_, err = e.GetDependencies("app.py", true, -1, 0)
	assert.ErrorIs(t, err, types.ErrInvalidQuery)

	_, err = e.GetDependents("app.py", true, 0, -1)
	assert.ErrorIs(t, err, types.ErrInvalidQuery)

	_, err = e.FindPath("app.py", "", 0)
	assert.ErrorIs(t, err, types.ErrInvalidQuery)
}

func TestFindPath(t *testing.T) {
	e := buildChain()

	path, err := e.FindPath("app.py", "db.py", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py", "service.py", "db.py"}, path)
}

func TestFindPath_NoPath(t *testing.T) {
	e := buildChain()

	path, err := e.FindPath("db.py", "app.py", 0)
	require.NoError(t, err)
	assert.Nil(t, path)
}

func TestFindPath_DepthBound(t *testing.T) {
	e := buildChain()

	path, err := e.FindPath("app.py", "db.py", 1)
	require.NoError(t, err)
	assert.Nil(t, path)
}

func TestFindPath_SameFile(t *testing.T) {
	e := buildChain()

	path, err := e.FindPath("app.py", "app.py", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py"}, path)
}

func TestGetStats(t *testing.T) {
	e := NewEngine()
	e.ReplaceFile("a.py", []types.DependencyEdge{localEdge("a.py", "util.py")})
	e.ReplaceFile("b.py", []types.DependencyEdge{localEdge("b.py", "util.py")})
	e.ReplaceFile("c.py", []types.DependencyEdge{localEdge("c.py", "util.py"), localEdge("c.py", "a.py")})

	stats := e.GetStats(5)
	assert.Equal(t, 4, stats.TotalFiles)
	assert.Equal(t, 4, stats.TotalEdges)
	assert.Empty(t, stats.CircularDependencies)
	require.NotEmpty(t, stats.MostImportedFiles)
	assert.Equal(t, "util.py", stats.MostImportedFiles[0].FilePath)
	assert.Equal(t, 3, stats.MostImportedFiles[0].DependentCount)
}

func TestGetStats_Cycles(t *testing.T) {
	e := NewEngine()
	e.ReplaceFile("a.py", []types.DependencyEdge{localEdge("a.py", "b.py")})
	e.ReplaceFile("b.py", []types.DependencyEdge{localEdge("b.py", "c.py")})
	e.ReplaceFile("c.py", []types.DependencyEdge{localEdge("c.py", "a.py")})

	stats := e.GetStats(5)
	require.Len(t, stats.CircularDependencies, 1)
	// Canonical rotation starts at the smallest member
	assert.Equal(t, []string{"a.py", "b.py", "c.py"}, stats.CircularDependencies[0])
}

func TestGetStats_SelfCycle(t *testing.T) {
	e := NewEngine()
	e.ReplaceFile("a.py", []types.DependencyEdge{localEdge("a.py", "a.py")})

	stats := e.GetStats(5)
	require.Len(t, stats.CircularDependencies, 1)
	assert.Equal(t, []string{"a.py"}, stats.CircularDependencies[0])
}

func TestReplaceFile_SwapsEdges(t *testing.T) {
	e := buildChain()

	// app.py now imports db.py directly instead of service.py
	e.ReplaceFile("app.py", []types.DependencyEdge{localEdge("app.py", "db.py")})

	deps, err := e.GetDependencies("app.py", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "db.py", deps[0].FilePath)

	dependents, err := e.GetDependents("service.py", false, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, dependents)
}

func TestRemoveFile(t *testing.T) {
	e := buildChain()
	e.RemoveFile("app.py")

	dependents, err := e.GetDependents("service.py", false, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, dependents)

	// service.py's own edges survive
	deps, err := e.GetDependencies("service.py", false, 0, 0)
	require.NoError(t, err)
	assert.Len(t, deps, 2)
}

func TestLoad_FromStore(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	project := &storage.Project{Name: "p", RootPath: "/p", IndexVersion: "1.0.0"}
	require.NoError(t, store.CreateProject(ctx, project))

	edge := localEdge("app.py", "service.py", "Service")
	require.NoError(t, store.UpsertDependencyEdge(ctx, project.ID, &edge))

	e := NewEngine()
	require.NoError(t, e.Load(ctx, store, project.ID))

	deps, err := e.GetDependencies("app.py", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "service.py", deps[0].FilePath)
	assert.Equal(t, []string{"Service"}, deps[0].ImportedNames)
}
