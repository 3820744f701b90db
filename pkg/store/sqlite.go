package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"botkit/pkg/schema"
)

// SQLite is a Store persisted in a SQLite database file.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLite) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversation_references (
			key TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			reference TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_references_channel ON conversation_references(channel_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *SQLite) Save(ctx context.Context, reference schema.ConversationReference) error {
	if err := validateReference(reference); err != nil {
		return err
	}

	payload, err := json.Marshal(reference)
	if err != nil {
		return fmt.Errorf("marshal reference: %w", err)
	}

	query := `INSERT INTO conversation_references (key, channel_id, conversation_id, reference, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET reference = excluded.reference, updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query,
		reference.Key(),
		strings.TrimSpace(reference.ChannelID),
		strings.TrimSpace(reference.Conversation.ID),
		string(payload),
		time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save reference: %w", err)
	}

	return nil
}

func (s *SQLite) Get(ctx context.Context, key string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT reference, updated_at FROM conversation_references WHERE key = ?`,
		strings.TrimSpace(key),
	)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get reference: %w", err)
	}

	return record, nil
}

// List returns records ordered by key.
func (s *SQLite) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT reference, updated_at FROM conversation_references ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}

	return out, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		payload   string
		updatedAt int64
	)
	if err := row.Scan(&payload, &updatedAt); err != nil {
		return Record{}, err
	}

	var reference schema.ConversationReference
	if err := json.Unmarshal([]byte(payload), &reference); err != nil {
		return Record{}, fmt.Errorf("unmarshal reference: %w", err)
	}

	return Record{Reference: reference, UpdatedAt: time.Unix(0, updatedAt).UTC()}, nil
}
