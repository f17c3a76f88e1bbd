//go:build sqlite_vec
// +build sqlite_vec

package storage

// Compiled when codelens is built with CGO and the sqlite_vec tag:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec,fts5" ./cmd/codelens
//
// In this mode semantic search ranks embeddings through the sqlite-vec
// extension's native cosine distance rather than the Go fallback scan.
// Keyword search uses FTS5 in both build modes. Prefer this build when
// serving large repositories.

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName selects the database/sql driver for this build
	DriverName = "sqlite3"

	// VectorExtensionAvailable reports whether sqlite-vec is compiled in
	VectorExtensionAvailable = true

	// BuildMode names the active build configuration; surfaced by the
	// get_status tool and the -version flag
	BuildMode = "cgo"
)
