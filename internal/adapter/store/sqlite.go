package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"notesim/internal/domain"
	"notesim/internal/port"

	_ "modernc.org/sqlite"
)

const (
	collectionsTable = "notesim_collections"
	recordsTable     = "notesim_records"
)

// SQLiteVectorStore keeps records in a single SQLite table keyed by
// (collection, id). Inserts do not replace, so callers delete first.
// Search computes cosine distance in Go.
type SQLiteVectorStore struct {
	db *sql.DB
}

// NewSQLiteVectorStore opens the database file at path and ensures the base schema.
func NewSQLiteVectorStore(path string) (*SQLiteVectorStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domain.ConfigurationError("sqlite open", "failed to open "+path, err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := ensureSQLiteSchema(db); err != nil {
		db.Close()
		return nil, domain.ConfigurationError("sqlite open", "failed to create schema", err)
	}
	return &SQLiteVectorStore{db: db}, nil
}

func ensureSQLiteSchema(db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL,
			metric TEXT NOT NULL,
			indexed INTEGER NOT NULL DEFAULT 0
		);`, collectionsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			collection TEXT NOT NULL,
			id VARCHAR(%d) NOT NULL,
			file_path VARCHAR(%d) NOT NULL,
			content_preview VARCHAR(%d) NOT NULL,
			mtime INTEGER,
			embedding BLOB NOT NULL,
			PRIMARY KEY(collection, id)
		);`, recordsTable, domain.MaxKeyLen, domain.MaxPathLen, domain.MaxPreviewLen),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteVectorStore) Name() string {
	return "sqlite"
}

func (s *SQLiteVectorStore) NativeUpsert() bool {
	return false
}

func (s *SQLiteVectorStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(1) FROM %s WHERE name = ?`, collectionsTable), name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteVectorStore) CreateCollection(ctx context.Context, schema domain.CollectionSchema) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(name, dimension, metric) VALUES(?, ?, ?)`, collectionsTable),
		schema.Name, schema.Dimension, string(schema.Metric))
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", schema.Name, err)
	}
	return nil
}

// BuildIndex creates the path lookup index and marks the collection indexed.
func (s *SQLiteVectorStore) BuildIndex(ctx context.Context, schema domain.CollectionSchema) error {
	stmts := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_path ON %s(collection, file_path);`, recordsTable, recordsTable),
		fmt.Sprintf(`UPDATE %s SET indexed = 1 WHERE name = ?`, collectionsTable),
	}
	if _, err := s.db.ExecContext(ctx, stmts[0]); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, stmts[1], schema.Name); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	return nil
}

// LoadCollection is a no-op: SQLite collections are always queryable.
func (s *SQLiteVectorStore) LoadCollection(ctx context.Context, name string) error {
	return nil
}

func (s *SQLiteVectorStore) Describe(ctx context.Context, name string) (domain.CollectionInfo, error) {
	info := domain.CollectionInfo{Name: name, Loaded: true}
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT dimension FROM %s WHERE name = ?`, collectionsTable), name).Scan(&info.Dimension)
	if errors.Is(err, sql.ErrNoRows) {
		return info, fmt.Errorf("collection %s not found", name)
	}
	if err != nil {
		return info, err
	}
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(1) FROM %s WHERE collection = ?`, recordsTable), name).Scan(&info.Count)
	return info, err
}

// Upsert inserts rec. It fails if a record with the same key exists.
func (s *SQLiteVectorStore) Upsert(ctx context.Context, collection string, rec domain.VectorRecord) error {
	var mtime any
	if rec.HasModTime {
		mtime = rec.ModTime
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(collection, id, file_path, content_preview, mtime, embedding) VALUES(?, ?, ?, ?, ?, ?)`, recordsTable),
		collection, rec.Key, rec.Path, rec.Preview, mtime, encodeEmbedding(rec.Vector))
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", rec.Key, err)
	}
	return nil
}

func (s *SQLiteVectorStore) Delete(ctx context.Context, collection, key string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE collection = ? AND id = ?`, recordsTable), collection, key)
	return err
}

func (s *SQLiteVectorStore) Get(ctx context.Context, collection, key string) (domain.VectorRecord, bool, error) {
	var (
		rec   = domain.VectorRecord{Key: key}
		mtime sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT file_path, content_preview, mtime FROM %s WHERE collection = ? AND id = ?`, recordsTable),
		collection, key).Scan(&rec.Path, &rec.Preview, &mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.VectorRecord{}, false, nil
	}
	if err != nil {
		return domain.VectorRecord{}, false, err
	}
	rec.ModTime = mtime.Int64
	rec.HasModTime = mtime.Valid
	return rec, true, nil
}

// Search returns candidates carrying cosine distance, nearest first.
func (s *SQLiteVectorStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]domain.Candidate, error) {
	if topK <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, file_path, content_preview, embedding FROM %s WHERE collection = ?`, recordsTable), collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var (
			c    domain.Candidate
			blob []byte
		)
		if err := rows.Scan(&c.Key, &c.Path, &c.Preview, &blob); err != nil {
			return nil, err
		}
		emb, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", c.Key, err)
		}
		if len(emb) != len(vector) {
			return nil, domain.ConfigurationError("sqlite search",
				fmt.Sprintf("query dimension mismatch: expected %d, got %d", len(emb), len(vector)), nil)
		}
		c.Value = 1 - cosineSimilarity(vector, emb)
		c.Kind = domain.ScoreDistance
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value < out[j].Value
		}
		return out[i].Key < out[j].Key
	})
	if topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

func (s *SQLiteVectorStore) Close() error {
	return s.db.Close()
}

var _ port.VectorStore = (*SQLiteVectorStore)(nil)
