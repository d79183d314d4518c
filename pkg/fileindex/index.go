// Package fileindex implements the file-descriptor index shared between
// the file watcher and the document loader: one descriptor per (path,
// collection), storing only a content hash and bookkeeping, never
// per-chunk vector ids — tracking those per descriptor duplicates
// payload data and scales with chunk count instead of file count.
package fileindex

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/halcyonlabs/vecstore/pkg/verrors"
)

// Descriptor is the file index's record for one (path, collection) pair.
// It deliberately does not carry per-chunk vector ids — that duplicates
// payload data and scales with chunk count instead of file count.
type Descriptor struct {
	Path         string
	ContentHash  string
	Collection   string
	LastSeen     time.Time
	ChunkCount   int
}

// Index is the persistent file-descriptor store, backed by SQLite so it
// survives process restarts without re-hashing the whole workspace. It is
// owned by the FileWatcher and shared read-mostly with the
// DocumentLoader, which needs it to decide skip-vs-reindex during an
// initial, watcher-less ingest.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if absent) the descriptor index at path, e.g.
// "<data_directory>/filewatcher.db".
func OpenIndex(ctx context.Context, path string) (*Index, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, verrors.Resource("watcher.open_index", fmt.Errorf("open descriptor db: %w", err))
	}
	idx := &Index{db: db}
	if err := idx.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) createTables(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS file_descriptors (
		path TEXT NOT NULL,
		collection TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		last_seen DATETIME NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (path, collection)
	);`
	if _, err := idx.db.ExecContext(ctx, ddl); err != nil {
		return verrors.Resource("watcher.create_tables", err)
	}
	return nil
}

// Get returns the descriptor for (path, collection), or nil if untracked.
func (idx *Index) Get(ctx context.Context, path, collection string) (*Descriptor, error) {
	row := idx.db.QueryRowContext(ctx,
		`SELECT path, collection, content_hash, last_seen, chunk_count FROM file_descriptors WHERE path = ? AND collection = ?`,
		path, collection)
	var d Descriptor
	if err := row.Scan(&d.Path, &d.Collection, &d.ContentHash, &d.LastSeen, &d.ChunkCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, verrors.Resource("watcher.index_get", err)
	}
	return &d, nil
}

// FindCollectionFor reports the collection a path is already tracked
// under, if any — the first rule in the DocumentLoader's collection
// routing order.
func (idx *Index) FindCollectionFor(ctx context.Context, path string) (string, bool, error) {
	row := idx.db.QueryRowContext(ctx, `SELECT collection FROM file_descriptors WHERE path = ? LIMIT 1`, path)
	var collection string
	if err := row.Scan(&collection); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, verrors.Resource("watcher.find_collection_for", err)
	}
	return collection, true, nil
}

// Upsert records or updates a descriptor after a (re)index.
func (idx *Index) Upsert(ctx context.Context, d Descriptor) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO file_descriptors (path, collection, content_hash, last_seen, chunk_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path, collection) DO UPDATE SET
			content_hash = excluded.content_hash,
			last_seen = excluded.last_seen,
			chunk_count = excluded.chunk_count`,
		d.Path, d.Collection, d.ContentHash, d.LastSeen, d.ChunkCount)
	if err != nil {
		return verrors.Resource("watcher.index_upsert", err)
	}
	return nil
}

// Delete removes the descriptor for (path, collection), e.g. once its
// vectors have been dropped because the file disappeared from disk.
func (idx *Index) Delete(ctx context.Context, path, collection string) error {
	if _, err := idx.db.ExecContext(ctx, `DELETE FROM file_descriptors WHERE path = ? AND collection = ?`, path, collection); err != nil {
		return verrors.Resource("watcher.index_delete", err)
	}
	return nil
}

// ListForCollection returns every tracked descriptor for collection, used
// to detect files that vanished from disk between ingest runs.
func (idx *Index) ListForCollection(ctx context.Context, collection string) ([]Descriptor, error) {
	rows, err := idx.db.QueryContext(ctx,
		`SELECT path, collection, content_hash, last_seen, chunk_count FROM file_descriptors WHERE collection = ?`, collection)
	if err != nil {
		return nil, verrors.Resource("watcher.list_for_collection", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Descriptor
	for rows.Next() {
		var d Descriptor
		if err := rows.Scan(&d.Path, &d.Collection, &d.ContentHash, &d.LastSeen, &d.ChunkCount); err != nil {
			return nil, verrors.Resource("watcher.list_for_collection", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (idx *Index) Close() error { return idx.db.Close() }
