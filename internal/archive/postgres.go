package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the turns table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS turns (
    id             BIGSERIAL PRIMARY KEY,
    user_text      TEXT NOT NULL,
    assistant_text TEXT NOT NULL,
    input_method   TEXT NOT NULL DEFAULT 'text',
    elapsed_ms     BIGINT NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_turns_created_at ON turns(created_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store over the given connection or pool. Call
// [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Connect opens a pool for dsn and returns a migrated store.
func Connect(ctx context.Context, dsn string) (*PostgresStore, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("archive: connect: %w", err)
	}
	store := NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool, nil
}

// Migrate executes the [Schema] DDL, creating the turns table if absent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

// Save inserts one turn and fills in its ID.
func (s *PostgresStore) Save(ctx context.Context, turn *Turn) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO turns (user_text, assistant_text, input_method, elapsed_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		turn.UserText, turn.AssistantText, turn.InputMethod,
		turn.Elapsed.Milliseconds(), turn.CreatedAt,
	).Scan(&turn.ID)
	if err != nil {
		return fmt.Errorf("archive: save: %w", err)
	}
	return nil
}

// Recent returns up to limit turns, newest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, user_text, assistant_text, input_method, elapsed_ms, created_at
		 FROM turns
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("archive: recent: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var elapsedMS int64
		if err := rows.Scan(&t.ID, &t.UserText, &t.AssistantText, &t.InputMethod, &elapsedMS, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		t.Elapsed = msToDuration(elapsedMS)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: recent: %w", err)
	}
	return turns, nil
}
