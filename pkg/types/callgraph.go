package types

// FunctionNode is a call-graph vertex: one node per distinct qualified
// function. Created or updated when its owning file is (re)indexed and
// removed when the file is deleted or the function disappears on re-parse.
type FunctionNode struct {
	QualifiedName string
	Name          string // Simple name, last segment of QualifiedName
	FilePath      string
	Language      Language
	StartLine     int
	EndLine       int
	IsAsync       bool
}

// CallSite is a call-graph edge: a single textual invocation of one
// function from within another. CalleeName is recorded exactly as written
// at the call site and may be unqualified; resolution to a concrete
// FunctionNode happens at query time because static analysis cannot always
// resolve the target unambiguously.
type CallSite struct {
	CallerQualifiedName string
	CalleeName          string
	CallerFile          string
	CallerLine          int
}

// InterfaceImplementation records that a named type provides a named
// interface or abstract base, with the method names it implements.
type InterfaceImplementation struct {
	TypeName      string
	InterfaceName string
	FilePath      string
	Language      Language
	Methods       []string
}
