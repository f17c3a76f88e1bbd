// Package storage provides SQLite-based persistence for indexed code data.
//
// The storage layer manages:
//   - Project metadata
//   - Per-file indexing state (content hashes, mtimes)
//   - Semantic units (functions, classes)
//   - Vector embeddings
//   - Full-text search indexes
//   - Persisted call-graph and dependency-graph rows
//
// # Database Schema
//
// Tables:
//   - projects: Project metadata (name, root path, counters)
//   - files: Per-file state with SHA-256 hashes and mtimes
//   - units: Extracted semantic units keyed by deterministic ID
//   - units_fts: FTS5 full-text search index over units
//   - embeddings: Vector embeddings for units
//   - function_nodes, call_sites: persisted call graph
//   - implementations: interface implementation records
//   - dependency_edges: persisted file dependency graph
//
// # Transactions
//
// Use transactions to replace one file's data atomically:
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	tx.DeleteUnitsByFile(ctx, projectID, path)
//	tx.DeleteGraphByFile(ctx, projectID, path)
//	// ... insert replacement rows ...
//	tx.UpsertFileRecord(ctx, rec)
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// # Build Tags
//
// The package supports two build configurations:
//
// CGO build (sqlite_vec tag) uses github.com/mattn/go-sqlite3 with the
// sqlite-vec extension for SQL-level vector similarity:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec,fts5"
//
// Pure Go build (default, or purego tag) uses modernc.org/sqlite and
// computes cosine similarity in Go:
//
//	CGO_ENABLED=0 go build -tags "purego"
package storage
