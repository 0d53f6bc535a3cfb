// Package pg stores browser-session values in Postgres.
package pg

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"admintable.org/internal/migrate"
	"admintable.org/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations exposes the bundled schema for cmd/migrate.
func Migrations() embed.FS { return migrations }

// MigrationsDir is the directory inside Migrations holding the .sql files.
const MigrationsDir = "migrations"

type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Migrate applies the bundled migrations.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := migrate.NewManager(s.db, migrations, MigrationsDir).Up(ctx)
	return err
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `
		select value from session_kv where namespace=$1 and key=$2
	`, namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, namespace, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		insert into session_kv(namespace, key, value, updated_at)
		values ($1, $2, $3, now())
		on conflict (namespace, key) do update
		set value = excluded.value, updated_at = excluded.updated_at
	`, namespace, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.db.ExecContext(ctx, `delete from session_kv where namespace=$1 and key=$2`, namespace, key)
	return err
}

func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := s.db.ExecContext(ctx, `delete from session_kv where namespace=$1`, namespace)
	return err
}

// Prune drops values not written since cutoff and reports how many rows went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from session_kv where updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
