package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"codelens/pkg/types"
)

// goExtractor extracts semantic data from Go source files
type goExtractor struct{}

func (e *goExtractor) extract(root *tree_sitter.Node, source []byte, filePath string, res *types.ParseResult) {
	e.walk(root, source, filePath, nil, res)
}

func (e *goExtractor) walk(node *tree_sitter.Node, source []byte, filePath string, scope []scopeEntry, res *types.ParseResult) {
	switch node.Kind() {
	case "function_declaration":
		if name, ok := e.emitFunction(node, source, "", res); ok {
			scope = append(scope, scopeEntry{name: name, isFunction: true})
		}

	case "method_declaration":
		if name, ok := e.emitFunction(node, source, e.receiverType(node, source), res); ok {
			scope = append(scope, scopeEntry{name: name, isFunction: true})
		}

	case "type_declaration":
		e.emitTypes(node, source, res)

	case "call_expression":
		e.emitCall(node, source, filePath, scope, res)

	case "import_spec":
		e.emitImport(node, source, filePath, res)
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		e.walk(child, source, filePath, scope, res)
	}
}

// emitFunction records a function or method unit. For methods the
// qualified name is ReceiverType.Name; scope is not nested in Go.
func (e *goExtractor) emitFunction(node *tree_sitter.Node, source []byte, receiver string, res *types.ParseResult) (string, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return "", false
	}
	name := nodeText(nameNode, source)

	qualified := name
	if receiver != "" {
		qualified = receiver + "." + name
	}

	res.Units = append(res.Units, types.SemanticUnit{
		Kind:          types.KindFunction,
		Name:          name,
		QualifiedName: qualified,
		Signature:     e.signature(node, source),
		Content:       nodeText(node, source),
		StartLine:     startLine(node),
		EndLine:       endLine(node),
	})
	return qualified, true
}

// receiverType returns the bare receiver type name of a method, with any
// pointer star stripped, e.g. "(s *Server)" -> "Server".
func (e *goExtractor) receiverType(node *tree_sitter.Node, source []byte) string {
	recv := node.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	text := nodeText(recv, source)
	text = strings.Trim(text, "()")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	typeName := fields[len(fields)-1]
	typeName = strings.TrimPrefix(typeName, "*")
	// Generic receivers: Server[T] -> Server
	if i := strings.Index(typeName, "["); i > 0 {
		typeName = typeName[:i]
	}
	return typeName
}

// signature returns the declaration text up to the body
func (e *goExtractor) signature(node *tree_sitter.Node, source []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil {
		return strings.SplitN(nodeText(node, source), "\n", 2)[0]
	}
	sig := string(source[node.StartByte():body.StartByte()])
	return strings.TrimSpace(sig)
}

// emitTypes records struct and interface declarations as class units
func (e *goExtractor) emitTypes(node *tree_sitter.Node, source []byte, res *types.ParseResult) {
	for i := uint(0); i < node.ChildCount(); i++ {
		spec := node.Child(i)
		if spec == nil || spec.Kind() != "type_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		typeNode := spec.ChildByFieldName("type")
		if nameNode == nil || typeNode == nil {
			continue
		}
		switch typeNode.Kind() {
		case "struct_type", "interface_type":
			name := nodeText(nameNode, source)
			res.Units = append(res.Units, types.SemanticUnit{
				Kind:          types.KindClass,
				Name:          name,
				QualifiedName: name,
				Signature:     "type " + name + " " + typeNode.Kind(),
				Content:       nodeText(spec, source),
				StartLine:     startLine(spec),
				EndLine:       endLine(spec),
			})
		}
	}
}

func (e *goExtractor) emitCall(node *tree_sitter.Node, source []byte, filePath string, scope []scopeEntry, res *types.ParseResult) {
	caller, ok := enclosingFunction(scope)
	if !ok {
		return
	}

	fnNode := node.ChildByFieldName("function")
	if fnNode == nil {
		return
	}

	var callee string
	switch fnNode.Kind() {
	case "identifier":
		callee = nodeText(fnNode, source)
	case "selector_expression":
		if field := fnNode.ChildByFieldName("field"); field != nil {
			callee = nodeText(field, source)
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

func (e *goExtractor) emitImport(node *tree_sitter.Node, source []byte, filePath string, res *types.ParseResult) {
	pathNode := node.ChildByFieldName("path")
	if pathNode == nil {
		return
	}
	importPath := strings.Trim(nodeText(pathNode, source), "\"")
	if importPath == "" {
		return
	}

	// Paths whose first segment carries no dot are standard library; the
	// indexer's resolver reclassifies module-local paths afterwards.
	kind := types.ImportThirdParty
	if first := strings.SplitN(importPath, "/", 2)[0]; !strings.Contains(first, ".") {
		kind = types.ImportStdlib
	}

	res.Imports = append(res.Imports, types.DependencyEdge{
		SourceFile: filePath,
		TargetFile: importPath,
		ImportKind: kind,
	})
}
