package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// maxCandidates caps how many chunks a keyword lookup loads for scoring.
const maxCandidates = 2000

type Document struct {
	RelPath     string
	ContentHash string
	SizeBytes   int64
	MTimeUnix   int64
	ChunkCount  int
}

type Chunk struct {
	ID      int64
	RelPath string
	Ordinal int
	Text    string
}

type Stats struct {
	Documents int64
	Chunks    int64
}

// SQLiteStore persists ingested documents and their text chunks.
type SQLiteStore struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	// modernc sqlite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return err
	}

	schema := `
CREATE TABLE IF NOT EXISTS documents (
  rel_path TEXT PRIMARY KEY,
  content_hash TEXT NOT NULL DEFAULT '',
  size_bytes INTEGER NOT NULL DEFAULT 0,
  mtime_unix INTEGER NOT NULL DEFAULT 0,
  chunk_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS chunks (
  chunk_id INTEGER PRIMARY KEY AUTOINCREMENT,
  rel_path TEXT NOT NULL,
  ordinal INTEGER NOT NULL,
  text TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_rel_path ON chunks(rel_path, ordinal);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, relPath string) (Document, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return Document{}, err
	}

	var doc Document
	row := db.QueryRowContext(
		ctx,
		`SELECT rel_path, content_hash, size_bytes, mtime_unix, chunk_count
		 FROM documents WHERE rel_path = ?`,
		relPath,
	)
	if err := row.Scan(&doc.RelPath, &doc.ContentHash, &doc.SizeBytes, &doc.MTimeUnix, &doc.ChunkCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// ReplaceDocument upserts doc and swaps its chunks atomically.
func (s *SQLiteStore) ReplaceDocument(ctx context.Context, doc Document, chunks []string) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(doc.RelPath) == "" {
		return errors.New("document path is required")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE rel_path = ?`, doc.RelPath); err != nil {
		return err
	}
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO documents(rel_path, content_hash, size_bytes, mtime_unix, chunk_count)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(rel_path) DO UPDATE SET
		   content_hash=excluded.content_hash,
		   size_bytes=excluded.size_bytes,
		   mtime_unix=excluded.mtime_unix,
		   chunk_count=excluded.chunk_count`,
		doc.RelPath,
		doc.ContentHash,
		doc.SizeBytes,
		doc.MTimeUnix,
		len(chunks),
	)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks(rel_path, ordinal, text) VALUES(?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for i, text := range chunks {
		if _, err := stmt.ExecContext(ctx, doc.RelPath, i, text); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, relPath string) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE rel_path = ?`, relPath); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE rel_path = ?`, relPath); err != nil {
		return err
	}
	return tx.Commit()
}

// ListPaths returns every stored document path in order. An optional prefix
// narrows the result.
func (s *SQLiteStore) ListPaths(ctx context.Context, prefix string) ([]string, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT rel_path FROM documents`
	args := make([]any, 0, 1)
	if strings.TrimSpace(prefix) != "" {
		query += ` WHERE rel_path LIKE ?`
		args = append(args, prefix+"%")
	}
	query += ` ORDER BY rel_path`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Candidates returns chunks containing at least one of terms, compared case
// insensitively for ASCII. No terms means no candidates.
func (s *SQLiteStore) Candidates(ctx context.Context, terms []string) ([]Chunk, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}

	where := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms)+1)
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		where = append(where, `text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(term)+"%")
	}
	if len(where) == 0 {
		return nil, nil
	}
	args = append(args, maxCandidates)

	query := `SELECT chunk_id, rel_path, ordinal, text FROM chunks WHERE ` +
		strings.Join(where, " OR ") +
		` ORDER BY chunk_id LIMIT ?`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]Chunk, 0, 32)
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.RelPath, &c.Ordinal, &c.Text); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&st.Documents); err != nil {
		return Stats{}, err
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&st.Chunks); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) ensureDB(ctx context.Context) (*sql.DB, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, errors.New("sqlite db not initialized")
	}
	return s.db, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
