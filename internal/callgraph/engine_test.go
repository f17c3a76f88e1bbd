package callgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codelens/internal/storage"
	"codelens/pkg/types"
)

func fn(qualified, name, file string) types.FunctionNode {
	return types.FunctionNode{
		QualifiedName: qualified,
		Name:          name,
		FilePath:      file,
		Language:      types.LangPython,
		StartLine:     1,
		EndLine:       2,
	}
}

func call(caller, callee, file string, line int) types.CallSite {
	return types.CallSite{
		CallerQualifiedName: caller,
		CalleeName:          callee,
		CallerFile:          file,
		CallerLine:          line,
	}
}

// buildBasicGraph wires foo -> bar -> baz across two files
func buildBasicGraph() *Engine {
	e := NewEngine()
	e.ReplaceFile("a.py",
		[]types.FunctionNode{fn("foo", "foo", "a.py")},
		[]types.CallSite{call("foo", "bar", "a.py", 2)},
		nil)
	e.ReplaceFile("b.py",
		[]types.FunctionNode{fn("bar", "bar", "b.py"), fn("baz", "baz", "b.py")},
		[]types.CallSite{call("bar", "baz", "b.py", 2)},
		nil)
	return e
}

func TestFindCallees_Direct(t *testing.T) {
	e := buildBasicGraph()

	result, err := e.FindCallees("foo", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, result.Direct, 1)
	assert.Equal(t, "bar", result.Direct[0].QualifiedName)
	assert.Equal(t, 1, result.Direct[0].Depth)
	assert.Equal(t, "a.py", result.Direct[0].Site.CallerFile)
	assert.Equal(t, 2, result.Direct[0].Site.CallerLine)
	assert.Empty(t, result.Indirect)
}

func TestFindCallees_Indirect(t *testing.T) {
	e := buildBasicGraph()

	result, err := e.FindCallees("foo", true, 3, 0)
	require.NoError(t, err)
	require.Len(t, result.Direct, 1)
	require.Len(t, result.Indirect, 1)
	assert.Equal(t, "baz", result.Indirect[0].QualifiedName)
	assert.Equal(t, 2, result.Indirect[0].Depth)
	assert.Equal(t, 2, result.TotalCount)
}

func TestFindCallers_Direct(t *testing.T) {
	e := buildBasicGraph()

	result, err := e.FindCallers("bar", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, result.Direct, 1)
	assert.Equal(t, "foo", result.Direct[0].QualifiedName)
}

func TestFindCallers_Indirect(t *testing.T) {
	e := buildBasicGraph()

	result, err := e.FindCallers("baz", true, 3, 0)
	require.NoError(t, err)
	require.Len(t, result.Direct, 1)
	assert.Equal(t, "bar", result.Direct[0].QualifiedName)
	require.Len(t, result.Indirect, 1)
	assert.Equal(t, "foo", result.Indirect[0].QualifiedName)
	assert.Equal(t, 2, result.Indirect[0].Depth)
}

func TestFindCallers_UnknownName(t *testing.T) {
	e := buildBasicGraph()

	result, err := e.FindCallers("quux", true, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, result.Direct)
	assert.Empty(t, result.Indirect)
	assert.Equal(t, 0, result.TotalCount)
}

func TestFindCallers_InvalidParams(t *testing.T) {
	e := buildBasicGraph()

	_, err := e.FindCallers("", false, 0, 0)
	assert.ErrorIs(t, err, types.ErrInvalidQuery)

	_, err = e.FindCallers("bar", false, -1, 0)
	assert.ErrorIs(t, err, types.ErrInvalidQuery)

	_, err = e.FindCallees("bar", false, 0, -5)
	assert.ErrorIs(t, err, types.ErrInvalidQuery)
}

func TestFindCallers_AmbiguousName(t *testing.T) {
	// Two files each define a save() method on a different class
	e := NewEngine()
	e.ReplaceFile("user.py",
		[]types.FunctionNode{fn("User.save", "save", "user.py")},
		nil, nil)
	e.ReplaceFile("order.py",
		[]types.FunctionNode{fn("Order.save", "save", "order.py")},
		nil, nil)
	e.ReplaceFile("main.py",
		[]types.FunctionNode{fn("main", "main", "main.py")},
		[]types.CallSite{call("main", "save", "main.py", 3)},
		nil)

	// Callees of main resolve the ambiguous name to both nodes
	result, err := e.FindCallees("main", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, result.Direct, 2)
	names := []string{result.Direct[0].QualifiedName, result.Direct[1].QualifiedName}
	assert.Contains(t, names, "User.save")
	assert.Contains(t, names, "Order.save")
}

func TestFindCallers_CycleTerminates(t *testing.T) {
	e := NewEngine()
	e.ReplaceFile("a.py",
		[]types.FunctionNode{fn("x", "x", "a.py"), fn("y", "y", "a.py")},
		[]types.CallSite{call("x", "y", "a.py", 2), call("y", "x", "a.py", 5)},
		nil)

	result, err := e.FindCallers("x", true, 10, 100)
	require.NoError(t, err)
	assert.Greater(t, result.TotalCount, 0)

	result2, err := e.FindCallees("x", true, 10, 100)
	require.NoError(t, err)
	assert.Greater(t, result2.TotalCount, 0)
}

func TestFindCallers_LimitStopsEarly(t *testing.T) {
	e := NewEngine()
	nodes := []types.FunctionNode{fn("target", "target", "t.py")}
	var sites []types.CallSite
	for i := 0; i < 20; i++ {
		name := string(rune('a' + i))
		nodes = append(nodes, fn(name, name, "t.py"))
		sites = append(sites, call(name, "target", "t.py", i+1))
	}
	e.ReplaceFile("t.py", nodes, sites, nil)

	result, err := e.FindCallers("target", false, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, result.TotalCount)
	assert.Len(t, result.Direct, 5)
}

func TestGetCallChain_Basic(t *testing.T) {
	e := buildBasicGraph()

	chains, err := e.GetCallChain("foo", "baz", 5, 5)
	require.NoError(t, err)
	require.Len(t, chains, 1)
	assert.Equal(t, []string{"foo", "bar", "baz"}, chains[0].Path)
	require.Len(t, chains[0].CallSites, 2)
	assert.Equal(t, "bar", chains[0].CallSites[0].CalleeName)
	assert.Equal(t, "baz", chains[0].CallSites[1].CalleeName)
}

func TestGetCallChain_ShortestFirst(t *testing.T) {
	// Two routes foo -> baz: direct and via bar
	e := NewEngine()
	e.ReplaceFile("a.py",
		[]types.FunctionNode{fn("foo", "foo", "a.py"), fn("bar", "bar", "a.py"), fn("baz", "baz", "a.py")},
		[]types.CallSite{
			call("foo", "bar", "a.py", 2),
			call("foo", "baz", "a.py", 3),
			call("bar", "baz", "a.py", 6),
		},
		nil)

	chains, err := e.GetCallChain("foo", "baz", 5, 5)
	require.NoError(t, err)
	require.Len(t, chains, 2)
	assert.Equal(t, []string{"foo", "baz"}, chains[0].Path)
	assert.Equal(t, []string{"foo", "bar", "baz"}, chains[1].Path)
}

func TestGetCallChain_MutualRecursion(t *testing.T) {
	e := NewEngine()
	e.ReplaceFile("a.py",
		[]types.FunctionNode{fn("x", "x", "a.py"), fn("y", "y", "a.py")},
		[]types.CallSite{call("x", "y", "a.py", 2), call("y", "x", "a.py", 5)},
		nil)

	chains, err := e.GetCallChain("x", "y", 5, 5)
	require.NoError(t, err)
	require.NotEmpty(t, chains)
	assert.Equal(t, []string{"x", "y"}, chains[0].Path)
}

func TestGetCallChain_DepthExcluded(t *testing.T) {
	e := buildBasicGraph()

	// foo -> bar -> baz needs two hops; depth 1 excludes it
	chains, err := e.GetCallChain("foo", "baz", 5, 1)
	require.NoError(t, err)
	assert.Empty(t, chains)
}

func TestFindImplementations(t *testing.T) {
	e := NewEngine()
	e.ReplaceFile("shapes.py", nil, nil, []types.InterfaceImplementation{
		{TypeName: "Circle", InterfaceName: "Shape", FilePath: "shapes.py", Language: types.LangPython, Methods: []string{"area"}},
		{TypeName: "Square", InterfaceName: "Shape", FilePath: "shapes.py", Language: types.LangPython, Methods: []string{"area"}},
	})
	e.ReplaceFile("shapes.ts", nil, nil, []types.InterfaceImplementation{
		{TypeName: "Triangle", InterfaceName: "Shape", FilePath: "shapes.ts", Language: types.LangTypeScript, Methods: []string{"area"}},
	})

	impls, err := e.FindImplementations("Shape", "", 0)
	require.NoError(t, err)
	assert.Len(t, impls, 3)

	pyOnly, err := e.FindImplementations("Shape", types.LangPython, 0)
	require.NoError(t, err)
	assert.Len(t, pyOnly, 2)

	none, err := e.FindImplementations("Renderer", "", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReplaceFile_SwapsAtomically(t *testing.T) {
	e := buildBasicGraph()

	// Re-index a.py so foo now calls baz instead of bar
	e.ReplaceFile("a.py",
		[]types.FunctionNode{fn("foo", "foo", "a.py")},
		[]types.CallSite{call("foo", "baz", "a.py", 2)},
		nil)

	result, err := e.FindCallees("foo", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, result.Direct, 1)
	assert.Equal(t, "baz", result.Direct[0].QualifiedName)

	callers, err := e.FindCallers("bar", false, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, callers.Direct)
}

func TestRemoveFile(t *testing.T) {
	e := buildBasicGraph()
	e.RemoveFile("a.py")

	result, err := e.FindCallees("foo", false, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalCount)

	callers, err := e.FindCallers("bar", false, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, callers.Direct)

	assert.Equal(t, 2, e.NodeCount())
	assert.Equal(t, 1, e.EdgeCount())
}

func TestLoad_FromStore(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	project := &storage.Project{Name: "p", RootPath: "/p", IndexVersion: "1.0.0"}
	require.NoError(t, store.CreateProject(ctx, project))

	node := fn("foo", "foo", "a.py")
	require.NoError(t, store.UpsertFunctionNode(ctx, project.ID, &node))
	site := call("foo", "bar", "a.py", 2)
	require.NoError(t, store.UpsertCallSite(ctx, project.ID, &site))
	bar := fn("bar", "bar", "b.py")
	require.NoError(t, store.UpsertFunctionNode(ctx, project.ID, &bar))

	e := NewEngine()
	require.NoError(t, e.Load(ctx, store, project.ID))

	result, err := e.FindCallees("foo", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, result.Direct, 1)
	assert.Equal(t, "bar", result.Direct[0].QualifiedName)
}
