//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// Compiled by default, or explicitly with the purego tag:
//
//	CGO_ENABLED=0 go build ./cmd/codelens
//
// Uses the pure Go SQLite driver, so no C toolchain is needed and
// cross-compilation works everywhere. Without sqlite-vec, vector
// similarity falls back to an in-process scan over stored embeddings,
// which is adequate for small and medium repositories.

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName selects the database/sql driver for this build
	DriverName = "sqlite"

	// VectorExtensionAvailable reports whether sqlite-vec is compiled in
	VectorExtensionAvailable = false

	// BuildMode names the active build configuration; surfaced by the
	// get_status tool and the -version flag
	BuildMode = "purego"
)
