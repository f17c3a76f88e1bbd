package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"codelens/pkg/types"
)

// scriptExtractor extracts semantic data from JavaScript and TypeScript
// source files. The two grammars share node kinds for everything this
// extractor touches; TypeScript adds interface declarations and implements
// clauses on top.
type scriptExtractor struct {
	lang types.Language
}

func (e *scriptExtractor) extract(root *tree_sitter.Node, source []byte, filePath string, res *types.ParseResult) {
	e.walk(root, source, filePath, nil, res)
}

func (e *scriptExtractor) walk(node *tree_sitter.Node, source []byte, filePath string, scope []scopeEntry, res *types.ParseResult) {
	switch node.Kind() {
	case "function_declaration", "generator_function_declaration":
		if name, ok := e.emitFunction(node, source, scope, res); ok {
			scope = append(scope, scopeEntry{name: name, isFunction: true})
		}

	case "method_definition":
		if name, ok := e.emitFunction(node, source, scope, res); ok {
			scope = append(scope, scopeEntry{name: name, isFunction: true})
		}

	case "class_declaration":
		if name, ok := e.emitClass(node, source, filePath, scope, res); ok {
			scope = append(scope, scopeEntry{name: name})
		}

	case "interface_declaration":
		e.emitInterface(node, source, scope, res)

	case "lexical_declaration", "variable_declaration":
		e.emitArrowFunctions(node, source, scope, res)

	case "call_expression":
		e.emitCall(node, source, filePath, scope, res)

	case "import_statement":
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

func (e *scriptExtractor) emitFunction(node *tree_sitter.Node, source []byte, scope []scopeEntry, res *types.ParseResult) (string, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return "", false
	}
	name := nodeText(nameNode, source)

	isAsync := false
	if first := node.Child(0); first != nil && first.Kind() == "async" {
		isAsync = true
	}

	sig := name
	if params := node.ChildByFieldName("parameters"); params != nil {
		sig += nodeText(params, source)
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

// emitArrowFunctions records `const f = () => {}` style declarations,
// which is the dominant function form in modern JS/TS codebases.
func (e *scriptExtractor) emitArrowFunctions(node *tree_sitter.Node, source []byte, scope []scopeEntry, res *types.ParseResult) {
	for i := uint(0); i < node.ChildCount(); i++ {
		decl := node.Child(i)
		if decl == nil || decl.Kind() != "variable_declarator" {
			continue
		}
		value := decl.ChildByFieldName("value")
		nameNode := decl.ChildByFieldName("name")
		if value == nil || nameNode == nil {
			continue
		}
		if value.Kind() != "arrow_function" && value.Kind() != "function_expression" {
			continue
		}

		name := nodeText(nameNode, source)
		isAsync := false
		if first := value.Child(0); first != nil && first.Kind() == "async" {
			isAsync = true
		}

		sig := name
		if params := value.ChildByFieldName("parameters"); params != nil {
			sig += nodeText(params, source)
		}

		res.Units = append(res.Units, types.SemanticUnit{
			Kind:          types.KindFunction,
			Name:          name,
			QualifiedName: qualify(scopeNames(scope), name),
			Signature:     sig,
			Content:       nodeText(decl, source),
			StartLine:     startLine(decl),
			EndLine:       endLine(decl),
			IsAsync:       isAsync,
		})
	}
}

func (e *scriptExtractor) emitClass(node *tree_sitter.Node, source []byte, filePath string, scope []scopeEntry, res *types.ParseResult) (string, bool) {
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
		Signature:     "class " + name,
		Content:       nodeText(node, source),
		StartLine:     startLine(node),
		EndLine:       endLine(node),
	})

	for _, parent := range e.heritageNames(node, source) {
		res.Implementations = append(res.Implementations, types.InterfaceImplementation{
			TypeName:      qualified,
			InterfaceName: parent,
			FilePath:      filePath,
			Language:      e.lang,
			Methods:       e.methodNames(node, source),
		})
	}
	return name, true
}

// emitInterface records a TypeScript interface declaration as a class unit
func (e *scriptExtractor) emitInterface(node *tree_sitter.Node, source []byte, scope []scopeEntry, res *types.ParseResult) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, source)
	res.Units = append(res.Units, types.SemanticUnit{
		Kind:          types.KindClass,
		Name:          name,
		QualifiedName: qualify(scopeNames(scope), name),
		Signature:     "interface " + name,
		Content:       nodeText(node, source),
		StartLine:     startLine(node),
		EndLine:       endLine(node),
	})
}

// heritageNames collects the extends and implements targets of a class
func (e *scriptExtractor) heritageNames(node *tree_sitter.Node, source []byte) []string {
	var parents []string
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil || child.Kind() != "class_heritage" {
			continue
		}
		parents = append(parents, e.clauseIdentifiers(child, source)...)
	}
	return parents
}

// clauseIdentifiers pulls identifiers out of extends/implements clauses
func (e *scriptExtractor) clauseIdentifiers(node *tree_sitter.Node, source []byte) []string {
	var names []string
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "identifier", "type_identifier", "member_expression", "nested_type_identifier":
			names = append(names, nodeText(child, source))
		case "extends_clause", "implements_clause", "generic_type":
			names = append(names, e.clauseIdentifiers(child, source)...)
		}
	}
	return names
}

// methodNames lists the method names defined directly on a class body
func (e *scriptExtractor) methodNames(node *tree_sitter.Node, source []byte) []string {
	body := node.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var methods []string
	for i := uint(0); i < body.ChildCount(); i++ {
		child := body.Child(i)
		if child == nil || child.Kind() != "method_definition" {
			continue
		}
		if nameNode := child.ChildByFieldName("name"); nameNode != nil {
			methods = append(methods, nodeText(nameNode, source))
		}
	}
	return methods
}

func (e *scriptExtractor) emitCall(node *tree_sitter.Node, source []byte, filePath string, scope []scopeEntry, res *types.ParseResult) {
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
	case "member_expression":
		if prop := fnNode.ChildByFieldName("property"); prop != nil {
			callee = nodeText(prop, source)
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

func (e *scriptExtractor) emitImport(node *tree_sitter.Node, source []byte, filePath string, res *types.ParseResult) {
	sourceNode := node.ChildByFieldName("source")
	if sourceNode == nil {
		return
	}
	importPath := strings.Trim(nodeText(sourceNode, source), "\"'`")
	if importPath == "" {
		return
	}

	kind := types.ImportThirdParty
	if strings.HasPrefix(importPath, ".") {
		kind = types.ImportLocal
	}

	res.Imports = append(res.Imports, types.DependencyEdge{
		SourceFile:    filePath,
		TargetFile:    importPath,
		ImportKind:    kind,
		ImportedNames: e.importedNames(node, source),
	})
}

// importedNames collects the bound names of an import clause
func (e *scriptExtractor) importedNames(node *tree_sitter.Node, source []byte) []string {
	var names []string
	var collect func(n *tree_sitter.Node)
	collect = func(n *tree_sitter.Node) {
		for i := uint(0); i < n.ChildCount(); i++ {
			child := n.Child(i)
			if child == nil {
				continue
			}
			switch child.Kind() {
			case "identifier":
				names = append(names, nodeText(child, source))
			case "import_clause", "named_imports", "namespace_import", "import_specifier":
				collect(child)
			}
		}
	}
	collect(node)
	return names
}
