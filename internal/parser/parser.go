package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"codelens/pkg/types"
)

// Parser turns one source file into semantic units, call sites, interface
// implementations, and import edges. Implementations must treat malformed
// syntax as a recorded ParseError, never a panic; the indexer handles a
// failed parse by skipping the file.
type Parser interface {
	// Parse extracts semantic data from a single source file. filePath is
	// the project-relative path recorded on every extracted entity.
	Parse(ctx context.Context, filePath string, content []byte) (*types.ParseResult, error)

	// Supports reports whether the parser can handle the given file path
	Supports(filePath string) bool
}

// extractor extracts semantic data from a parsed tree-sitter AST into res
type extractor interface {
	extract(root *tree_sitter.Node, source []byte, filePath string, res *types.ParseResult)
}

// TreeSitterParser implements Parser using tree-sitter grammars for Go,
// Python, JavaScript, and TypeScript. A fresh tree-sitter parser is
// created per Parse call, so concurrent Parse calls are safe.
type TreeSitterParser struct {
	languages  map[types.Language]*tree_sitter.Language
	tsx        *tree_sitter.Language
	extractors map[types.Language]extractor
}

// New creates a TreeSitterParser with all supported grammars registered
func New() *TreeSitterParser {
	return &TreeSitterParser{
		languages: map[types.Language]*tree_sitter.Language{
			types.LangGo:         tree_sitter.NewLanguage(tree_sitter_go.Language()),
			types.LangPython:     tree_sitter.NewLanguage(tree_sitter_python.Language()),
			types.LangJavaScript: tree_sitter.NewLanguage(tree_sitter_javascript.Language()),
			types.LangTypeScript: tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
		},
		tsx: tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()),
		extractors: map[types.Language]extractor{
			types.LangGo:         &goExtractor{},
			types.LangPython:     &pyExtractor{},
			types.LangJavaScript: &scriptExtractor{lang: types.LangJavaScript},
			types.LangTypeScript: &scriptExtractor{lang: types.LangTypeScript},
		},
	}
}

// Supports reports whether the file extension maps to a registered grammar
func (p *TreeSitterParser) Supports(filePath string) bool {
	lang, ok := DetectLanguage(filePath)
	if !ok {
		return false
	}
	_, ok = p.languages[lang]
	return ok
}

// Parse extracts semantic units, call sites, implementations, and imports
// from a single source file. Syntax errors are recorded on the result
// rather than returned: the caller decides whether a partial parse is
// usable (the indexer treats any parse error as skip-and-log).
func (p *TreeSitterParser) Parse(ctx context.Context, filePath string, content []byte) (*types.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lang, ok := DetectLanguage(filePath)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file type %s", types.ErrParseFailure, filePath)
	}

	tsLang := p.languages[lang]
	ext := p.extractors[lang]
	if tsLang == nil || ext == nil {
		return nil, fmt.Errorf("%w: no grammar for language %s", types.ErrParseFailure, lang)
	}
	// The plain TypeScript grammar rejects JSX, so .tsx files use the
	// TSX variant of the grammar.
	if lang == types.LangTypeScript && strings.EqualFold(filepath.Ext(filePath), ".tsx") {
		tsLang = p.tsx
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(tsLang); err != nil {
		return nil, fmt.Errorf("set language %s: %w", lang, err)
	}

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("%w: nil tree for %s", types.ErrParseFailure, filePath)
	}
	defer tree.Close()

	res := &types.ParseResult{
		FilePath: filePath,
		Language: lang,
	}

	root := tree.RootNode()
	if root.HasError() {
		res.AddError(filePath, int(root.StartPosition().Row)+1, "syntax error")
		return res, nil
	}

	ext.extract(root, content, filePath, res)

	for i := range res.Units {
		res.Units[i].FilePath = filePath
		res.Units[i].Language = lang
		res.Units[i].ComputeContentHash()
	}
	for i := range res.Implementations {
		res.Implementations[i].Language = lang
	}

	return res, nil
}

// nodeText returns the source text covered by a node
func nodeText(n *tree_sitter.Node, source []byte) string {
	return n.Utf8Text(source)
}

// startLine and endLine convert tree-sitter 0-based rows to 1-based lines
func startLine(n *tree_sitter.Node) int { return int(n.StartPosition().Row) + 1 }
func endLine(n *tree_sitter.Node) int   { return int(n.EndPosition().Row) + 1 }

// qualify joins a scope stack and a name into a dotted qualified name
func qualify(scope []string, name string) string {
	if len(scope) == 0 {
		return name
	}
	q := ""
	for _, s := range scope {
		q += s + "."
	}
	return q + name
}
