package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"codelens/pkg/types"
)

// pyExtractor extracts semantic data from Python source files
type pyExtractor struct{}

// scopeEntry tracks one enclosing definition during the walk
type scopeEntry struct {
	name       string
	isFunction bool
}

func (e *pyExtractor) extract(root *tree_sitter.Node, source []byte, filePath string, res *types.ParseResult) {
	e.walk(root, source, filePath, nil, res)
}

func (e *pyExtractor) walk(node *tree_sitter.Node, source []byte, filePath string, scope []scopeEntry, res *types.ParseResult) {
	switch node.Kind() {
	case "function_definition":
		name, ok := e.emitFunction(node, source, scope, res)
		if ok {
			scope = append(scope, scopeEntry{name: name, isFunction: true})
		}

	case "class_definition":
		name, ok := e.emitClass(node, source, filePath, scope, res)
		if ok {
			scope = append(scope, scopeEntry{name: name})
		}

	case "call":
		e.emitCall(node, source, filePath, scope, res)

	case "import_statement":
		e.emitImports(node, source, filePath, res)

	case "import_from_statement":
		e.emitFromImport(node, source, filePath, res)
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		e.walk(child, source, filePath, scope, res)
	}
}

func (e *pyExtractor) emitFunction(node *tree_sitter.Node, source []byte, scope []scopeEntry, res *types.ParseResult) (string, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return "", false
	}
	name := nodeText(nameNode, source)

	isAsync := false
	if first := node.Child(0); first != nil && first.Kind() == "async" {
		isAsync = true
	}

	sig := "def " + name
	if params := node.ChildByFieldName("parameters"); params != nil {
		sig += nodeText(params, source)
	}
	if isAsync {
		sig = "async " + sig
	}

	res.Units = append(res.Units, types.SemanticUnit{
		Kind:          types.KindFunction,
		Name:          name,
		QualifiedName: qualify(scopeNames(scope), name),
		Signature:     sig,
		Content:       nodeText(node, source),
		StartLine:     startLine(node),
		EndLine:       endLine(node),
		IsAsync:       isAsync,
	})
	return name, true
}

func (e *pyExtractor) emitClass(node *tree_sitter.Node, source []byte, filePath string, scope []scopeEntry, res *types.ParseResult) (string, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return "", false
	}
	name := nodeText(nameNode, source)
	qualified := qualify(scopeNames(scope), name)

	res.Units = append(res.Units, types.SemanticUnit{
		Kind:          types.KindClass,
		Name:          name,
		QualifiedName: qualified,
		Signature:     "class " + name + e.baseListText(node, source),
		Content:       nodeText(node, source),
		StartLine:     startLine(node),
		EndLine:       endLine(node),
	})

	// Each base class becomes a provides-interface record so that
	// "find implementations of X" resolves subclasses of abstract bases.
	for _, base := range e.baseNames(node, source) {
		res.Implementations = append(res.Implementations, types.InterfaceImplementation{
			TypeName:      qualified,
			InterfaceName: base,
			FilePath:      filePath,
			Methods:       e.methodNames(node, source),
		})
	}
	return name, true
}

// baseListText returns the superclass list as written, e.g. "(Base, ABC)"
func (e *pyExtractor) baseListText(node *tree_sitter.Node, source []byte) string {
	if sup := node.ChildByFieldName("superclasses"); sup != nil {
		return nodeText(sup, source)
	}
	return ""
}

// baseNames returns the named superclasses of a class definition
func (e *pyExtractor) baseNames(node *tree_sitter.Node, source []byte) []string {
	sup := node.ChildByFieldName("superclasses")
	if sup == nil {
		return nil
	}
	var bases []string
	for i := uint(0); i < sup.ChildCount(); i++ {
		child := sup.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "identifier", "attribute":
			bases = append(bases, nodeText(child, source))
		}
	}
	return bases
}

// methodNames lists the directly defined method names of a class body
func (e *pyExtractor) methodNames(node *tree_sitter.Node, source []byte) []string {
	body := node.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var methods []string
	for i := uint(0); i < body.ChildCount(); i++ {
		child := body.Child(i)
		if child == nil {
			continue
		}
		def := child
		if def.Kind() == "decorated_definition" {
			if d := def.ChildByFieldName("definition"); d != nil {
				def = d
			}
		}
		if def.Kind() != "function_definition" {
			continue
		}
		if nameNode := def.ChildByFieldName("name"); nameNode != nil {
			methods = append(methods, nodeText(nameNode, source))
		}
	}
	return methods
}

func (e *pyExtractor) emitCall(node *tree_sitter.Node, source []byte, filePath string, scope []scopeEntry, res *types.ParseResult) {
	caller, ok := enclosingFunction(scope)
	if !ok {
		return
	}

	fnNode := node.ChildByFieldName("function")
	if fnNode == nil {
		return
	}

	// Record the function name as written at the call site. For attribute
	// calls (obj.method()) the invoked name is the final attribute; the
	// receiver expression is not part of it.
	var callee string
	switch fnNode.Kind() {
	case "identifier":
		callee = nodeText(fnNode, source)
	case "attribute":
		if attr := fnNode.ChildByFieldName("attribute"); attr != nil {
			callee = nodeText(attr, source)
		}
	default:
		return
	}
	if callee == "" {
		return
	}

	res.CallSites = append(res.CallSites, types.CallSite{
		CallerQualifiedName: caller,
		CalleeName:          callee,
		CallerFile:          filePath,
		CallerLine:          startLine(node),
	})
}

func (e *pyExtractor) emitImports(node *tree_sitter.Node, source []byte, filePath string, res *types.ParseResult) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		target := ""
		switch child.Kind() {
		case "dotted_name":
			target = nodeText(child, source)
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				target = nodeText(name, source)
			}
		}
		if target == "" {
			continue
		}
		res.Imports = append(res.Imports, types.DependencyEdge{
			SourceFile: filePath,
			TargetFile: target,
			ImportKind: types.ImportThirdParty, // refined by the indexer's resolver
		})
	}
}

func (e *pyExtractor) emitFromImport(node *tree_sitter.Node, source []byte, filePath string, res *types.ParseResult) {
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}
	module := nodeText(moduleNode, source)
	if module == "" {
		return
	}

	kind := types.ImportThirdParty
	if strings.HasPrefix(module, ".") {
		kind = types.ImportLocal
	}

	var names []string
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil || child.StartByte() <= moduleNode.StartByte() {
			continue
		}
		switch child.Kind() {
		case "dotted_name":
			names = append(names, nodeText(child, source))
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				names = append(names, nodeText(name, source))
			}
		case "wildcard_import":
			names = append(names, "*")
		}
	}

	res.Imports = append(res.Imports, types.DependencyEdge{
		SourceFile:    filePath,
		TargetFile:    module,
		ImportKind:    kind,
		ImportedNames: names,
	})
}

// scopeNames projects a scope stack to its name components
func scopeNames(scope []scopeEntry) []string {
	names := make([]string, len(scope))
	for i, s := range scope {
		names[i] = s.name
	}
	return names
}

// enclosingFunction returns the qualified name of the innermost enclosing
// function, or false when the position is not inside a function body.
func enclosingFunction(scope []scopeEntry) (string, bool) {
	if len(scope) == 0 || !scope[len(scope)-1].isFunction {
		return "", false
	}
	return qualify(scopeNames(scope[:len(scope)-1]), scope[len(scope)-1].name), true
}
