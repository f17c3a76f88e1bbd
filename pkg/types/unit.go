package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// UnitKind represents the kind of semantic unit extracted from source
type UnitKind string

const (
	KindFunction UnitKind = "function"
	KindClass    UnitKind = "class"
)

// Language identifies the source language of a file or unit
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
)

// SemanticUnit represents one indexed function or class.
// Units are unique per (file_path, qualified_name, kind) at any point in
// time; a re-index of the owning file retires the old set and inserts a
// fresh one, so unit IDs do not survive edits to the file.
type SemanticUnit struct {
	// Identification
	ID            string
	FilePath      string // Relative to project root
	Kind          UnitKind
	Name          string
	QualifiedName string // e.g. "ClassName.method" or package-qualified name

	// Content
	Signature   string
	Content     string // Unit body text, used for keyword scoring and display
	ContentHash [32]byte

	// Location
	StartLine int
	EndLine   int

	// Metadata
	Language Language
	IsAsync  bool // Function units only
}

// ComputeID derives the deterministic unit ID from the project name and
// the unit's identity triple. The ID is stable across processes so result
// ordering that tie-breaks on ID is reproducible.
func (u *SemanticUnit) ComputeID(project string) string {
	h := sha256.Sum256([]byte(project + "|" + u.FilePath + "|" + u.QualifiedName + "|" + string(u.Kind)))
	return hex.EncodeToString(h[:16])
}

// ComputeContentHash computes the SHA-256 hash of the unit content
func (u *SemanticUnit) ComputeContentHash() {
	u.ContentHash = sha256.Sum256([]byte(u.Content))
}

// ValidateKind checks if the unit kind is valid
func (u *SemanticUnit) ValidateKind() error {
	switch u.Kind {
	case KindFunction, KindClass:
		return nil
	default:
		return errors.New("invalid unit kind")
	}
}

// Validate performs comprehensive validation of the unit
func (u *SemanticUnit) Validate() error {
	if u.Name == "" {
		return errors.New("unit name is required")
	}
	if u.QualifiedName == "" {
		return errors.New("unit qualified name is required")
	}
	if u.FilePath == "" {
		return errors.New("unit file path is required")
	}
	if err := u.ValidateKind(); err != nil {
		return err
	}
	if u.StartLine <= 0 || u.EndLine <= 0 {
		return errors.New("invalid position: line numbers must be positive")
	}
	if u.StartLine > u.EndLine {
		return errors.New("invalid position: start line must be before or equal to end line")
	}
	return nil
}

// SimpleName returns the last segment of a qualified name, e.g.
// "Parser.parse" -> "parse". A name with no qualifier is returned as is.
func SimpleName(qualified string) string {
	if i := strings.LastIndex(qualified, "."); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}
