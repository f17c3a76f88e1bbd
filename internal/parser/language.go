package parser

import (
	"path/filepath"
	"strings"

	"codelens/pkg/types"
)

// extLanguages maps file extensions to languages
var extLanguages = map[string]types.Language{
	".go":  types.LangGo,
	".py":  types.LangPython,
	".pyi": types.LangPython,
	".js":  types.LangJavaScript,
	".jsx": types.LangJavaScript,
	".mjs": types.LangJavaScript,
	".ts":  types.LangTypeScript,
	".tsx": types.LangTypeScript,
}

// DetectLanguage maps a file path to its source language by extension.
// Minified bundles are rejected: they parse but produce noise units.
func DetectLanguage(filePath string) (types.Language, bool) {
	base := filepath.Base(filePath)
	if strings.Contains(base, ".min.") {
		return "", false
	}
	lang, ok := extLanguages[strings.ToLower(filepath.Ext(base))]
	return lang, ok
}
