package indexer

import (
	"os"
	"path/filepath"
	"strings"

	"codelens/pkg/types"
)

// resolver reclassifies parser import edges against the project on
// disk. Parsers only see one file at a time, so they tag imports with a
// best guess; the resolver rewrites module references to project file
// paths and fixes the import kind where the guess was wrong.
type resolver struct {
	root       string // Absolute project root
	moduleName string // Go module path from go.mod, if any
}

func newResolver(root string) *resolver {
	r := &resolver{root: root}
	if content, err := os.ReadFile(filepath.Join(root, "go.mod")); err == nil {
		for _, line := range strings.Split(string(content), "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "module ") {
				r.moduleName = strings.TrimSpace(strings.TrimPrefix(line, "module"))
				break
			}
		}
	}
	return r
}

// resolve rewrites one import edge in place. sourceFile is the
// project-relative path of the importing file.
func (r *resolver) resolve(edge *types.DependencyEdge, sourceFile string, lang types.Language) {
	switch lang {
	case types.LangPython:
		r.resolvePython(edge, sourceFile)
	case types.LangGo:
		r.resolveGo(edge)
	case types.LangJavaScript, types.LangTypeScript:
		r.resolveScript(edge, sourceFile)
	}
}

// resolvePython maps dotted module names and relative imports to
// project files. "pkg.mod" becomes pkg/mod.py or pkg/mod/__init__.py
// when one exists under the root; otherwise the parser's
// classification stands.
func (r *resolver) resolvePython(edge *types.DependencyEdge, sourceFile string) {
	target := edge.TargetFile

	if strings.HasPrefix(target, ".") {
		// Relative import: each leading dot beyond the first climbs one
		// directory from the source file's package
		dots := 0
		for dots < len(target) && target[dots] == '.' {
			dots++
		}
		dir := filepath.Dir(sourceFile)
		for i := 1; i < dots; i++ {
			dir = filepath.Dir(dir)
		}
		module := target[dots:]
		candidate := dir
		if module != "" {
			candidate = filepath.Join(dir, strings.ReplaceAll(module, ".", "/"))
		}
		if resolved, ok := r.pythonFile(candidate); ok {
			edge.TargetFile = resolved
		}
		edge.ImportKind = types.ImportLocal
		return
	}

	candidate := strings.ReplaceAll(target, ".", "/")
	if resolved, ok := r.pythonFile(candidate); ok {
		edge.TargetFile = resolved
		edge.ImportKind = types.ImportLocal
	}
}

// pythonFile checks rel/rel.py and rel/__init__.py under the root
func (r *resolver) pythonFile(rel string) (string, bool) {
	if rel == "" || rel == "." {
		return "", false
	}
	asFile := rel + ".py"
	if fileExists(filepath.Join(r.root, asFile)) {
		return asFile, true
	}
	asPackage := filepath.Join(rel, "__init__.py")
	if fileExists(filepath.Join(r.root, asPackage)) {
		return asPackage, true
	}
	return "", false
}

// resolveGo reclassifies imports under the project's module path as
// local package references
func (r *resolver) resolveGo(edge *types.DependencyEdge) {
	if r.moduleName == "" {
		return
	}
	target := edge.TargetFile
	if target == r.moduleName {
		edge.TargetFile = "."
		edge.ImportKind = types.ImportLocal
		return
	}
	if strings.HasPrefix(target, r.moduleName+"/") {
		edge.TargetFile = strings.TrimPrefix(target, r.moduleName+"/")
		edge.ImportKind = types.ImportLocal
	}
}

// scriptExtensions are tried in order when resolving an extensionless
// JS/TS import specifier
var scriptExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs"}

// resolveScript maps relative specifiers to project files, trying the
// usual extension and index-file fallbacks
func (r *resolver) resolveScript(edge *types.DependencyEdge, sourceFile string) {
	target := edge.TargetFile
	if !strings.HasPrefix(target, ".") {
		return // Bare specifier, stays third-party
	}

	edge.ImportKind = types.ImportLocal
	base := filepath.Join(filepath.Dir(sourceFile), target)

	if fileExists(filepath.Join(r.root, base)) {
		edge.TargetFile = base
		return
	}
	for _, ext := range scriptExtensions {
		if fileExists(filepath.Join(r.root, base+ext)) {
			edge.TargetFile = base + ext
			return
		}
	}
	for _, ext := range scriptExtensions {
		index := filepath.Join(base, "index"+ext)
		if fileExists(filepath.Join(r.root, index)) {
			edge.TargetFile = index
			return
		}
	}
	// Unresolvable relative import, keep the joined path
	edge.TargetFile = base
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
