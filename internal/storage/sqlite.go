package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"codelens/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode so graph and search readers never block on the
	// indexer's write transactions
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", types.ErrStorageUnavailable, err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return &sqliteTx{tx: tx, store: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx    *sql.Tx
	store *SQLiteStore
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// Project operations

func (s *SQLiteStore) createProject(ctx context.Context, q querier, project *Project) error {
	now := time.Now()
	result, err := q.ExecContext(ctx, `
		INSERT INTO projects (name, root_path, index_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		project.Name, project.RootPath, project.IndexVersion, now, now)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	project.ID = id
	project.CreatedAt = now
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) getProject(ctx context.Context, q querier, name string) (*Project, error) {
	project := &Project{}
	var lastIndexed sql.NullTime
	err := q.QueryRowContext(ctx, `
		SELECT id, name, root_path, total_files, total_units, index_version,
		       last_indexed_at, created_at, updated_at
		FROM projects WHERE name = ?`, name).Scan(
		&project.ID, &project.Name, &project.RootPath, &project.TotalFiles,
		&project.TotalUnits, &project.IndexVersion, &lastIndexed,
		&project.CreatedAt, &project.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if lastIndexed.Valid {
		project.LastIndexedAt = lastIndexed.Time
	}
	return project, nil
}

func (s *SQLiteStore) updateProject(ctx context.Context, q querier, project *Project) error {
	_, err := q.ExecContext(ctx, `
		UPDATE projects
		SET root_path = ?, total_files = ?, total_units = ?, index_version = ?,
		    last_indexed_at = ?, updated_at = ?
		WHERE id = ?`,
		project.RootPath, project.TotalFiles, project.TotalUnits,
		project.IndexVersion, project.LastIndexedAt, time.Now(), project.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

// CreateProject creates a new project record
func (s *SQLiteStore) CreateProject(ctx context.Context, project *Project) error {
	return s.createProject(ctx, s.db, project)
}

// GetProject retrieves a project by name
func (s *SQLiteStore) GetProject(ctx context.Context, name string) (*Project, error) {
	return s.getProject(ctx, s.db, name)
}

// UpdateProject updates an existing project record
func (s *SQLiteStore) UpdateProject(ctx context.Context, project *Project) error {
	return s.updateProject(ctx, s.db, project)
}

func (t *sqliteTx) CreateProject(ctx context.Context, project *Project) error {
	return t.store.createProject(ctx, t.tx, project)
}
func (t *sqliteTx) GetProject(ctx context.Context, name string) (*Project, error) {
	return t.store.getProject(ctx, t.tx, name)
}
func (t *sqliteTx) UpdateProject(ctx context.Context, project *Project) error {
	return t.store.updateProject(ctx, t.tx, project)
}

// Index-state operations

func (s *SQLiteStore) upsertFileRecord(ctx context.Context, q querier, rec *FileRecord) error {
	now := time.Now()
	result, err := q.ExecContext(ctx, `
		INSERT INTO files (project_id, file_path, content_hash, mtime, unit_count, last_indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, file_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			mtime = excluded.mtime,
			unit_count = excluded.unit_count,
			last_indexed_at = excluded.last_indexed_at,
			updated_at = excluded.updated_at`,
		rec.ProjectID, rec.FilePath, rec.ContentHash[:], rec.ModTime,
		rec.UnitCount, rec.LastIndexedAt, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert file record: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil && rec.ID == 0 {
		rec.ID = id
	}
	return nil
}

func (s *SQLiteStore) getFileRecord(ctx context.Context, q querier, projectID int64, filePath string) (*FileRecord, error) {
	rec := &FileRecord{}
	var hash []byte
	var mtime, lastIndexed sql.NullTime
	err := q.QueryRowContext(ctx, `
		SELECT id, project_id, file_path, content_hash, mtime, unit_count, last_indexed_at
		FROM files WHERE project_id = ? AND file_path = ?`,
		projectID, filePath).Scan(
		&rec.ID, &rec.ProjectID, &rec.FilePath, &hash, &mtime, &rec.UnitCount, &lastIndexed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file record: %w", err)
	}
	copy(rec.ContentHash[:], hash)
	if mtime.Valid {
		rec.ModTime = mtime.Time
	}
	if lastIndexed.Valid {
		rec.LastIndexedAt = lastIndexed.Time
	}
	return rec, nil
}

func (s *SQLiteStore) deleteFileRecord(ctx context.Context, q querier, projectID int64, filePath string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM files WHERE project_id = ? AND file_path = ?`, projectID, filePath)
	if err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) listFileRecords(ctx context.Context, q querier, projectID int64) ([]*FileRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, project_id, file_path, content_hash, mtime, unit_count, last_indexed_at
		FROM files WHERE project_id = ? ORDER BY file_path`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list file records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*FileRecord
	for rows.Next() {
		rec := &FileRecord{}
		var hash []byte
		var mtime, lastIndexed sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &rec.FilePath, &hash, &mtime, &rec.UnitCount, &lastIndexed); err != nil {
			return nil, err
		}
		copy(rec.ContentHash[:], hash)
		if mtime.Valid {
			rec.ModTime = mtime.Time
		}
		if lastIndexed.Valid {
			rec.LastIndexedAt = lastIndexed.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpsertFileRecord creates or updates per-file indexing state
func (s *SQLiteStore) UpsertFileRecord(ctx context.Context, rec *FileRecord) error {
	return s.upsertFileRecord(ctx, s.db, rec)
}

// GetFileRecord retrieves per-file indexing state
func (s *SQLiteStore) GetFileRecord(ctx context.Context, projectID int64, filePath string) (*FileRecord, error) {
	return s.getFileRecord(ctx, s.db, projectID, filePath)
}

// DeleteFileRecord removes per-file indexing state
func (s *SQLiteStore) DeleteFileRecord(ctx context.Context, projectID int64, filePath string) error {
	return s.deleteFileRecord(ctx, s.db, projectID, filePath)
}

// ListFileRecords lists all tracked files for a project
func (s *SQLiteStore) ListFileRecords(ctx context.Context, projectID int64) ([]*FileRecord, error) {
	return s.listFileRecords(ctx, s.db, projectID)
}

func (t *sqliteTx) UpsertFileRecord(ctx context.Context, rec *FileRecord) error {
	return t.store.upsertFileRecord(ctx, t.tx, rec)
}
func (t *sqliteTx) GetFileRecord(ctx context.Context, projectID int64, filePath string) (*FileRecord, error) {
	return t.store.getFileRecord(ctx, t.tx, projectID, filePath)
}
func (t *sqliteTx) DeleteFileRecord(ctx context.Context, projectID int64, filePath string) error {
	return t.store.deleteFileRecord(ctx, t.tx, projectID, filePath)
}
func (t *sqliteTx) ListFileRecords(ctx context.Context, projectID int64) ([]*FileRecord, error) {
	return t.store.listFileRecords(ctx, t.tx, projectID)
}

// Unit operations

func (s *SQLiteStore) upsertUnit(ctx context.Context, q querier, unit *Unit) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO units (id, project_id, file_path, kind, name, qualified_name,
		                   signature, content, content_hash, start_line, end_line,
		                   language, is_async)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			signature = excluded.signature,
			content = excluded.content,
			content_hash = excluded.content_hash,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			is_async = excluded.is_async`,
		unit.ID, unit.ProjectID, unit.FilePath, string(unit.Kind), unit.Name,
		unit.QualifiedName, unit.Signature, unit.Content, unit.ContentHash[:],
		unit.StartLine, unit.EndLine, string(unit.Language), unit.IsAsync)
	if err != nil {
		return fmt.Errorf("failed to upsert unit: %w", err)
	}
	return nil
}

// scanUnit scans one unit row in SELECT column order
func scanUnit(scan func(dest ...interface{}) error) (*Unit, error) {
	unit := &Unit{}
	var kind, language string
	var hash []byte
	if err := scan(&unit.ID, &unit.ProjectID, &unit.FilePath, &kind, &unit.Name,
		&unit.QualifiedName, &unit.Signature, &unit.Content, &hash,
		&unit.StartLine, &unit.EndLine, &language, &unit.IsAsync); err != nil {
		return nil, err
	}
	unit.Kind = types.UnitKind(kind)
	unit.Language = types.Language(language)
	copy(unit.ContentHash[:], hash)
	return unit, nil
}

const unitColumns = `id, project_id, file_path, kind, name, qualified_name,
	signature, content, content_hash, start_line, end_line, language, is_async`

func (s *SQLiteStore) getUnit(ctx context.Context, q querier, unitID string) (*Unit, error) {
	row := q.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id = ?`, unitID)
	unit, err := scanUnit(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	return unit, nil
}

func (s *SQLiteStore) listUnitsByFile(ctx context.Context, q querier, projectID int64, filePath string) ([]*Unit, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+unitColumns+` FROM units
		WHERE project_id = ? AND file_path = ? ORDER BY start_line`,
		projectID, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var units []*Unit
	for rows.Next() {
		unit, err := scanUnit(rows.Scan)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, rows.Err()
}

func (s *SQLiteStore) deleteUnitsByFile(ctx context.Context, q querier, projectID int64, filePath string) (int, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM units WHERE project_id = ? AND file_path = ?`, projectID, filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to delete units: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStore) countUnits(ctx context.Context, q querier, projectID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM units WHERE project_id = ?`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count units: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) scrollUnits(ctx context.Context, q querier, projectID int64, filters *SearchFilters, fn func(*Unit) error) error {
	query := `SELECT ` + unitColumns + ` FROM units WHERE project_id = ?`
	args := []interface{}{projectID}
	query, args = applyUnitFilters(query, args, filters, "")
	query += ` ORDER BY id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to scroll units: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		unit, err := scanUnit(rows.Scan)
		if err != nil {
			return err
		}
		if err := fn(unit); err != nil {
			return err
		}
	}
	return rows.Err()
}

// UpsertUnit inserts or updates a semantic unit
func (s *SQLiteStore) UpsertUnit(ctx context.Context, unit *Unit) error {
	return s.upsertUnit(ctx, s.db, unit)
}

// GetUnit retrieves a unit by ID
func (s *SQLiteStore) GetUnit(ctx context.Context, unitID string) (*Unit, error) {
	return s.getUnit(ctx, s.db, unitID)
}

// ListUnitsByFile lists all units extracted from one file
func (s *SQLiteStore) ListUnitsByFile(ctx context.Context, projectID int64, filePath string) ([]*Unit, error) {
	return s.listUnitsByFile(ctx, s.db, projectID, filePath)
}

// DeleteUnitsByFile removes all units extracted from one file
func (s *SQLiteStore) DeleteUnitsByFile(ctx context.Context, projectID int64, filePath string) (int, error) {
	return s.deleteUnitsByFile(ctx, s.db, projectID, filePath)
}

// CountUnits counts the units stored for a project
func (s *SQLiteStore) CountUnits(ctx context.Context, projectID int64) (int, error) {
	return s.countUnits(ctx, s.db, projectID)
}

// ScrollUnits iterates over all matching units in stable ID order
func (s *SQLiteStore) ScrollUnits(ctx context.Context, projectID int64, filters *SearchFilters, fn func(*Unit) error) error {
	return s.scrollUnits(ctx, s.db, projectID, filters, fn)
}

func (t *sqliteTx) UpsertUnit(ctx context.Context, unit *Unit) error {
	return t.store.upsertUnit(ctx, t.tx, unit)
}
func (t *sqliteTx) GetUnit(ctx context.Context, unitID string) (*Unit, error) {
	return t.store.getUnit(ctx, t.tx, unitID)
}
func (t *sqliteTx) ListUnitsByFile(ctx context.Context, projectID int64, filePath string) ([]*Unit, error) {
	return t.store.listUnitsByFile(ctx, t.tx, projectID, filePath)
}
func (t *sqliteTx) DeleteUnitsByFile(ctx context.Context, projectID int64, filePath string) (int, error) {
	return t.store.deleteUnitsByFile(ctx, t.tx, projectID, filePath)
}
func (t *sqliteTx) CountUnits(ctx context.Context, projectID int64) (int, error) {
	return t.store.countUnits(ctx, t.tx, projectID)
}
func (t *sqliteTx) ScrollUnits(ctx context.Context, projectID int64, filters *SearchFilters, fn func(*Unit) error) error {
	return t.store.scrollUnits(ctx, t.tx, projectID, filters, fn)
}

// Embedding operations

func (s *SQLiteStore) upsertEmbedding(ctx context.Context, q querier, emb *Embedding) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO embeddings (unit_id, vector, dimension, provider, model)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(unit_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model`,
		emb.UnitID, serializeVector(emb.Vector), emb.Dimension, emb.Provider, emb.Model)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

func (s *SQLiteStore) countEmbeddings(ctx context.Context, q querier, projectID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM embeddings e
		INNER JOIN units u ON e.unit_id = u.id
		WHERE u.project_id = ?`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return n, nil
}

// UpsertEmbedding inserts or updates a unit's embedding vector
func (s *SQLiteStore) UpsertEmbedding(ctx context.Context, emb *Embedding) error {
	return s.upsertEmbedding(ctx, s.db, emb)
}

// CountEmbeddings counts embeddings stored for a project
func (s *SQLiteStore) CountEmbeddings(ctx context.Context, projectID int64) (int, error) {
	return s.countEmbeddings(ctx, s.db, projectID)
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, emb *Embedding) error {
	return t.store.upsertEmbedding(ctx, t.tx, emb)
}
func (t *sqliteTx) CountEmbeddings(ctx context.Context, projectID int64) (int, error) {
	return t.store.countEmbeddings(ctx, t.tx, projectID)
}

// Search operations

// SearchVector ranks units by cosine similarity to the query vector
func (s *SQLiteStore) SearchVector(ctx context.Context, projectID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, s.db, projectID, vector, limit, filters)
}

// SearchText ranks units by BM25 relevance over the FTS index
func (s *SQLiteStore) SearchText(ctx context.Context, projectID int64, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, s.db, projectID, query, limit, filters)
}

func (t *sqliteTx) SearchVector(ctx context.Context, projectID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, t.tx, projectID, vector, limit, filters)
}
func (t *sqliteTx) SearchText(ctx context.Context, projectID int64, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, t.tx, projectID, query, limit, filters)
}

// Graph persistence

func (s *SQLiteStore) upsertFunctionNode(ctx context.Context, q querier, projectID int64, node *types.FunctionNode) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO function_nodes (project_id, qualified_name, name, file_path, language, start_line, end_line, is_async)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, file_path, qualified_name) DO UPDATE SET
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			is_async = excluded.is_async`,
		projectID, node.QualifiedName, node.Name, node.FilePath,
		string(node.Language), node.StartLine, node.EndLine, node.IsAsync)
	if err != nil {
		return fmt.Errorf("failed to upsert function node: %w", err)
	}
	return nil
}

func (s *SQLiteStore) upsertCallSite(ctx context.Context, q querier, projectID int64, site *types.CallSite) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO call_sites (project_id, caller_qualified_name, callee_name, caller_file, caller_line)
		VALUES (?, ?, ?, ?, ?)`,
		projectID, site.CallerQualifiedName, site.CalleeName, site.CallerFile, site.CallerLine)
	if err != nil {
		return fmt.Errorf("failed to upsert call site: %w", err)
	}
	return nil
}

func (s *SQLiteStore) upsertImplementation(ctx context.Context, q querier, projectID int64, impl *types.InterfaceImplementation) error {
	methods, err := json.Marshal(impl.Methods)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO implementations (project_id, type_name, interface_name, file_path, language, methods)
		VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, impl.TypeName, impl.InterfaceName, impl.FilePath, string(impl.Language), string(methods))
	if err != nil {
		return fmt.Errorf("failed to upsert implementation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) upsertDependencyEdge(ctx context.Context, q querier, projectID int64, edge *types.DependencyEdge) error {
	names, err := json.Marshal(edge.ImportedNames)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO dependency_edges (project_id, source_file, target_file, import_kind, imported_names)
		VALUES (?, ?, ?, ?, ?)`,
		projectID, edge.SourceFile, edge.TargetFile, string(edge.ImportKind), string(names))
	if err != nil {
		return fmt.Errorf("failed to upsert dependency edge: %w", err)
	}
	return nil
}

func (s *SQLiteStore) deleteGraphByFile(ctx context.Context, q querier, projectID int64, filePath string) error {
	stmts := []string{
		`DELETE FROM function_nodes WHERE project_id = ? AND file_path = ?`,
		`DELETE FROM call_sites WHERE project_id = ? AND caller_file = ?`,
		`DELETE FROM implementations WHERE project_id = ? AND file_path = ?`,
		`DELETE FROM dependency_edges WHERE project_id = ? AND source_file = ?`,
	}
	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt, projectID, filePath); err != nil {
			return fmt.Errorf("failed to delete graph rows: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) listFunctionNodes(ctx context.Context, q querier, projectID int64) ([]types.FunctionNode, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT qualified_name, name, file_path, language, start_line, end_line, is_async
		FROM function_nodes WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list function nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []types.FunctionNode
	for rows.Next() {
		var node types.FunctionNode
		var language string
		if err := rows.Scan(&node.QualifiedName, &node.Name, &node.FilePath,
			&language, &node.StartLine, &node.EndLine, &node.IsAsync); err != nil {
			return nil, err
		}
		node.Language = types.Language(language)
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

func (s *SQLiteStore) listCallSites(ctx context.Context, q querier, projectID int64) ([]types.CallSite, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT caller_qualified_name, callee_name, caller_file, caller_line
		FROM call_sites WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list call sites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sites []types.CallSite
	for rows.Next() {
		var site types.CallSite
		if err := rows.Scan(&site.CallerQualifiedName, &site.CalleeName,
			&site.CallerFile, &site.CallerLine); err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

func (s *SQLiteStore) listImplementations(ctx context.Context, q querier, projectID int64) ([]types.InterfaceImplementation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT type_name, interface_name, file_path, language, methods
		FROM implementations WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list implementations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var impls []types.InterfaceImplementation
	for rows.Next() {
		var impl types.InterfaceImplementation
		var language, methods string
		if err := rows.Scan(&impl.TypeName, &impl.InterfaceName, &impl.FilePath,
			&language, &methods); err != nil {
			return nil, err
		}
		impl.Language = types.Language(language)
		if methods != "" {
			_ = json.Unmarshal([]byte(methods), &impl.Methods)
		}
		impls = append(impls, impl)
	}
	return impls, rows.Err()
}

func (s *SQLiteStore) listDependencyEdges(ctx context.Context, q querier, projectID int64) ([]types.DependencyEdge, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT source_file, target_file, import_kind, imported_names
		FROM dependency_edges WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependency edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []types.DependencyEdge
	for rows.Next() {
		var edge types.DependencyEdge
		var kind, names string
		if err := rows.Scan(&edge.SourceFile, &edge.TargetFile, &kind, &names); err != nil {
			return nil, err
		}
		edge.ImportKind = types.ImportKind(kind)
		if names != "" {
			_ = json.Unmarshal([]byte(names), &edge.ImportedNames)
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// UpsertFunctionNode persists a call-graph vertex
func (s *SQLiteStore) UpsertFunctionNode(ctx context.Context, projectID int64, node *types.FunctionNode) error {
	return s.upsertFunctionNode(ctx, s.db, projectID, node)
}

// UpsertCallSite persists a call-graph edge
func (s *SQLiteStore) UpsertCallSite(ctx context.Context, projectID int64, site *types.CallSite) error {
	return s.upsertCallSite(ctx, s.db, projectID, site)
}

// UpsertImplementation persists an interface implementation record
func (s *SQLiteStore) UpsertImplementation(ctx context.Context, projectID int64, impl *types.InterfaceImplementation) error {
	return s.upsertImplementation(ctx, s.db, projectID, impl)
}

// UpsertDependencyEdge persists a file dependency edge
func (s *SQLiteStore) UpsertDependencyEdge(ctx context.Context, projectID int64, edge *types.DependencyEdge) error {
	return s.upsertDependencyEdge(ctx, s.db, projectID, edge)
}

// DeleteGraphByFile removes all graph rows originating from one file
func (s *SQLiteStore) DeleteGraphByFile(ctx context.Context, projectID int64, filePath string) error {
	return s.deleteGraphByFile(ctx, s.db, projectID, filePath)
}

// ListFunctionNodes loads all call-graph vertices for a project
func (s *SQLiteStore) ListFunctionNodes(ctx context.Context, projectID int64) ([]types.FunctionNode, error) {
	return s.listFunctionNodes(ctx, s.db, projectID)
}

// ListCallSites loads all call-graph edges for a project
func (s *SQLiteStore) ListCallSites(ctx context.Context, projectID int64) ([]types.CallSite, error) {
	return s.listCallSites(ctx, s.db, projectID)
}

// ListImplementations loads all implementation records for a project
func (s *SQLiteStore) ListImplementations(ctx context.Context, projectID int64) ([]types.InterfaceImplementation, error) {
	return s.listImplementations(ctx, s.db, projectID)
}

// ListDependencyEdges loads all dependency edges for a project
func (s *SQLiteStore) ListDependencyEdges(ctx context.Context, projectID int64) ([]types.DependencyEdge, error) {
	return s.listDependencyEdges(ctx, s.db, projectID)
}

func (t *sqliteTx) UpsertFunctionNode(ctx context.Context, projectID int64, node *types.FunctionNode) error {
	return t.store.upsertFunctionNode(ctx, t.tx, projectID, node)
}
func (t *sqliteTx) UpsertCallSite(ctx context.Context, projectID int64, site *types.CallSite) error {
	return t.store.upsertCallSite(ctx, t.tx, projectID, site)
}
func (t *sqliteTx) UpsertImplementation(ctx context.Context, projectID int64, impl *types.InterfaceImplementation) error {
	return t.store.upsertImplementation(ctx, t.tx, projectID, impl)
}
func (t *sqliteTx) UpsertDependencyEdge(ctx context.Context, projectID int64, edge *types.DependencyEdge) error {
	return t.store.upsertDependencyEdge(ctx, t.tx, projectID, edge)
}
func (t *sqliteTx) DeleteGraphByFile(ctx context.Context, projectID int64, filePath string) error {
	return t.store.deleteGraphByFile(ctx, t.tx, projectID, filePath)
}
func (t *sqliteTx) ListFunctionNodes(ctx context.Context, projectID int64) ([]types.FunctionNode, error) {
	return t.store.listFunctionNodes(ctx, t.tx, projectID)
}
func (t *sqliteTx) ListCallSites(ctx context.Context, projectID int64) ([]types.CallSite, error) {
	return t.store.listCallSites(ctx, t.tx, projectID)
}
func (t *sqliteTx) ListImplementations(ctx context.Context, projectID int64) ([]types.InterfaceImplementation, error) {
	return t.store.listImplementations(ctx, t.tx, projectID)
}
func (t *sqliteTx) ListDependencyEdges(ctx context.Context, projectID int64) ([]types.DependencyEdge, error) {
	return t.store.listDependencyEdges(ctx, t.tx, projectID)
}

// Tx database operations: transactions cannot nest or close the database

func (t *sqliteTx) Close() error {
	return errors.New("cannot close store from within a transaction")
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, errors.New("nested transactions are not supported")
}

// applyUnitFilters appends WHERE conditions for search filters. The alias
// prefixes column references when units is joined under another name.
func applyUnitFilters(query string, args []interface{}, filters *SearchFilters, alias string) (string, []interface{}) {
	if filters == nil {
		return query, args
	}
	col := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}

	if len(filters.Languages) > 0 {
		placeholders := strings.Repeat("?,", len(filters.Languages))
		query += " AND " + col("language") + " IN (" + placeholders[:len(placeholders)-1] + ")"
		for _, l := range filters.Languages {
			args = append(args, l)
		}
	}
	if len(filters.Kinds) > 0 {
		placeholders := strings.Repeat("?,", len(filters.Kinds))
		query += " AND " + col("kind") + " IN (" + placeholders[:len(placeholders)-1] + ")"
		for _, k := range filters.Kinds {
			args = append(args, k)
		}
	}
	if filters.PathPattern != "" {
		query += " AND " + col("file_path") + " GLOB ?"
		args = append(args, filters.PathPattern)
	}
	return query, args
}
