// Package tracker decides whether files need re-indexing based on
// persisted content hashes and modification times.
package tracker

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"codelens/internal/storage"
)

// Tracker owns the per-file indexing state for a project
type Tracker struct {
	store     storage.Store
	projectID int64
}

// New creates a tracker bound to one project
func New(store storage.Store, projectID int64) *Tracker {
	return &Tracker{store: store, projectID: projectID}
}

// Decision reports whether a file needs indexing and why
type Decision struct {
	Reindex bool
	Reason  string // "new", "content-changed", "unchanged", "mtime-only"
}

// ShouldReindex compares the file's current content against the stored
// state. The mtime check is a fast path only: an unchanged mtime skips
// hashing, but a changed mtime still requires a hash mismatch before the
// file is re-indexed. A file reverted to previously indexed content is
// reported as unchanged; RecordTouched should then refresh the stored
// mtime so later checks take the fast path again.
func (t *Tracker) ShouldReindex(ctx context.Context, filePath string, content []byte, mtime time.Time) (Decision, error) {
	rec, err := t.store.GetFileRecord(ctx, t.projectID, filePath)
	if errors.Is(err, storage.ErrNotFound) {
		return Decision{Reindex: true, Reason: "new"}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load file state: %w", err)
	}

	if mtime.Equal(rec.ModTime) {
		return Decision{Reindex: false, Reason: "unchanged"}, nil
	}

	hash := sha256.Sum256(content)
	if hash == rec.ContentHash {
		// Touched but byte-identical, e.g. a revert or a checkout
		return Decision{Reindex: false, Reason: "mtime-only"}, nil
	}

	return Decision{Reindex: true, Reason: "content-changed"}, nil
}

// RecordIndexed persists the post-index state of a file. Call inside the
// same transaction that wrote the file's units so state and data stay
// consistent.
func (t *Tracker) RecordIndexed(ctx context.Context, store storage.Store, filePath string, content []byte, mtime time.Time, unitCount int) error {
	rec := &storage.FileRecord{
		ProjectID:     t.projectID,
		FilePath:      filePath,
		ContentHash:   sha256.Sum256(content),
		ModTime:       mtime,
		UnitCount:     unitCount,
		LastIndexedAt: time.Now(),
	}
	if err := store.UpsertFileRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to record indexed file: %w", err)
	}
	return nil
}

// RecordTouched refreshes the stored mtime without re-indexing. Used when
// the content hash matched but the mtime moved.
func (t *Tracker) RecordTouched(ctx context.Context, filePath string, mtime time.Time) error {
	rec, err := t.store.GetFileRecord(ctx, t.projectID, filePath)
	if err != nil {
		return fmt.Errorf("failed to load file state: %w", err)
	}
	rec.ModTime = mtime
	if err := t.store.UpsertFileRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to refresh file mtime: %w", err)
	}
	return nil
}

// Remove drops the tracked state for a file
func (t *Tracker) Remove(ctx context.Context, store storage.Store, filePath string) error {
	if err := store.DeleteFileRecord(ctx, t.projectID, filePath); err != nil {
		return fmt.Errorf("failed to remove file state: %w", err)
	}
	return nil
}

// ListTracked returns all files currently tracked for the project
func (t *Tracker) ListTracked(ctx context.Context) ([]*storage.FileRecord, error) {
	return t.store.ListFileRecords(ctx, t.projectID)
}
