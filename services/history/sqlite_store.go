package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/bequbed/jellyfin-trakt-sync/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore keeps the cache in a SQLite database, one row per item.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path and applies
// pending schema migrations.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sync cache db: %w", err)
	}
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sync cache db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (map[string]models.CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_id, recorded_at, title, kind FROM synced_items`)
	if err != nil {
		return nil, fmt.Errorf("query sync cache: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]models.CacheEntry)
	for rows.Next() {
		var (
			entry      models.CacheEntry
			recordedAt int64
			kind       string
		)
		if err := rows.Scan(&entry.SourceID, &recordedAt, &entry.Title, &kind); err != nil {
			return nil, fmt.Errorf("scan sync cache: %w", err)
		}
		entry.RecordedAt = time.Unix(recordedAt, 0)
		entry.Kind = models.ParseMediaKind(kind)
		entries[entry.SourceID] = entry
	}
	return entries, rows.Err()
}

const upsertEntry = `INSERT INTO synced_items (source_id, recorded_at, title, kind)
VALUES (?, ?, ?, ?)
ON CONFLICT(source_id) DO UPDATE SET recorded_at = excluded.recorded_at, title = excluded.title, kind = excluded.kind`

// Put upserts a single entry.
func (s *SQLiteStore) Put(ctx context.Context, entry models.CacheEntry) error {
	if _, err := s.db.ExecContext(ctx, upsertEntry, entry.SourceID, entry.RecordedAt.Unix(), entry.Title, string(entry.Kind)); err != nil {
		return fmt.Errorf("upsert sync cache entry %s: %w", entry.SourceID, err)
	}
	return nil
}

// Save upserts every entry in one transaction. Rows are never deleted.
func (s *SQLiteStore) Save(ctx context.Context, entries map[string]models.CacheEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync cache tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, upsertEntry)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare sync cache upsert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.ExecContext(ctx, entry.SourceID, entry.RecordedAt.Unix(), entry.Title, string(entry.Kind)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert sync cache entry %s: %w", entry.SourceID, err)
		}
	}
	return tx.Commit()
}
