package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresDocumentStore keeps every record as a JSONB row keyed by (collection, id).
type PostgresDocumentStore struct {
	db *sqlx.DB
}

func NewPostgresDocumentStore(db *sqlx.DB) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: db}
}

// ConnectPostgres opens and pings a PostgreSQL connection pool.
func ConnectPostgres(connStr string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// MigratePostgres applies the embedded schema migrations.
func MigratePostgres(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "open migrations")
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "create migrator")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

func (s *PostgresDocumentStore) Set(ctx context.Context, collection, id string, record any) error {
	obj, err := toObject(record)
	if err != nil {
		return err
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return errors.Wrap(err, "encode record")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		collection, id, data,
	)
	return errors.Wrapf(err, "set %s/%s", collection, id)
}

func (s *PostgresDocumentStore) Get(ctx context.Context, collection, id string) (json.RawMessage, bool, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %s/%s", collection, id)
	}
	return json.RawMessage(data), true, nil
}

// Update merges inside a transaction so concurrent merges on the same row
// do not lose fields.
func (s *PostgresDocumentStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin update")
	}
	defer tx.Rollback()

	var data []byte
	err = tx.GetContext(ctx, &data,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	if err != nil {
		return errors.Wrapf(err, "load %s/%s", collection, id)
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
		`UPDATE documents SET data = $3, updated_at = now() WHERE collection = $1 AND id = $2`,
		collection, id, out,
	); err != nil {
		return errors.Wrapf(err, "update %s/%s", collection, id)
	}
	return errors.Wrap(tx.Commit(), "commit update")
}

func (s *PostgresDocumentStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	return errors.Wrapf(err, "delete %s/%s", collection, id)
}

func (s *PostgresDocumentStore) Query(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error) {
	want, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(err, "encode query value")
	}
	var rows [][]byte
	err = s.db.SelectContext(ctx, &rows,
		`SELECT data FROM documents WHERE collection = $1 AND data->$2 = $3::jsonb ORDER BY id`,
		collection, field, string(want),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s.%s", collection, field)
	}
	return rawRows(rows), nil
}

func (s *PostgresDocumentStore) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	var rows [][]byte
	err := s.db.SelectContext(ctx, &rows,
		`SELECT data FROM documents WHERE collection = $1 ORDER BY id`,
		collection,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", collection)
	}
	return rawRows(rows), nil
}

func rawRows(rows [][]byte) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, json.RawMessage(r))
	}
	return out
}
