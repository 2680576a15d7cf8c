package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	// Pure-Go driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    data       TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (collection, id)
);
`

// SQLiteDocumentStore is a single-file DocumentStore for local development.
type SQLiteDocumentStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteDocumentStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite: open %q", path)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite: apply schema")
	}
	return &SQLiteDocumentStore{db: db}, nil
}

func (s *SQLiteDocumentStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteDocumentStore) Set(ctx context.Context, collection, id string, record any) error {
	obj, err := toObject(record)
	if err != nil {
		return err
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return errors.Wrap(err, "encode record")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, id, string(data), sqliteNow(),
	)
	return errors.Wrapf(err, "sqlite: set %s/%s", collection, id)
}

func (s *SQLiteDocumentStore) Get(ctx context.Context, collection, id string) (json.RawMessage, bool, error) {
	var data string
	err := s.db.GetContext(ctx, &data,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "sqlite: get %s/%s", collection, id)
	}
	return json.RawMessage(data), true, nil
}

func (s *SQLiteDocumentStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite: begin update")
	}
	defer tx.Rollback()

	var data string
	err = tx.GetContext(ctx, &data,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	if err != nil {
		return errors.Wrapf(err, "sqlite: load %s/%s", collection, id)
	}

	current, err := toObject(json.RawMessage(data))
	if err != nil {
		return err
	}
	merged, err := mergeFields(current, fields)
	if err != nil {
		return err
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return errors.Wrap(err, "encode record")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		string(out), sqliteNow(), collection, id,
	); err != nil {
		return errors.Wrapf(err, "sqlite: update %s/%s", collection, id)
	}
	return errors.Wrap(tx.Commit(), "sqlite: commit update")
}

func (s *SQLiteDocumentStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	return errors.Wrapf(err, "sqlite: delete %s/%s", collection, id)
}

// Query narrows rows with json_extract and confirms the match on the decoded
// record, since SQLite compares JSON numbers and strings loosely.
func (s *SQLiteDocumentStore) Query(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error) {
	var rows []string
	err := s.db.SelectContext(ctx, &rows,
		`SELECT data FROM documents WHERE collection = ? AND json_extract(data, ?) IS NOT NULL ORDER BY id`,
		collection, "$."+field,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite: query %s.%s", collection, field)
	}

	var out []json.RawMessage
	for _, r := range rows {
		rec, err := toObject(json.RawMessage(r))
		if err != nil {
			return nil, err
		}
		if fieldEquals(rec, field, value) {
			out = append(out, json.RawMessage(r))
		}
	}
	return out, nil
}

func (s *SQLiteDocumentStore) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	var rows []string
	err := s.db.SelectContext(ctx, &rows,
		`SELECT data FROM documents WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite: list %s", collection)
	}
	out := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, json.RawMessage(r))
	}
	return out, nil
}

func sqliteNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
