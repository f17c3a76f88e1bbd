package types

// ImportKind classifies a dependency edge by the origin of its target.
// Only local edges participate in graph traversal; third-party and
// standard-library edges are leaves kept for display.
type ImportKind string

const (
	ImportLocal      ImportKind = "local"
	ImportThirdParty ImportKind = "third_party"
	ImportStdlib     ImportKind = "standard_library"
)

// ModuleNode is a dependency-graph vertex: one per source file, keyed by
// normalized relative file path.
type ModuleNode struct {
	FilePath string
}

// DependencyEdge is a dependency-graph edge from one file to the module it
// imports. For local imports TargetFile is the normalized relative path of
// the imported file; for third-party and standard-library imports it is
// the import specifier as written.
type DependencyEdge struct {
	SourceFile    string
	TargetFile    string
	ImportKind    ImportKind
	ImportedNames []string // Names pulled in, e.g. "from x import a, b"
}

// IsLocal reports whether the edge participates in graph traversal
func (e *DependencyEdge) IsLocal() bool {
	return e.ImportKind == ImportLocal
}
