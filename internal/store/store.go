package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id              uuid PRIMARY KEY,
	conversation_id text        NOT NULL,
	author          text        NOT NULL,
	role            text        NOT NULL,
	body            text        NOT NULL,
	ts              bigint      NOT NULL,
	model_id        text        NOT NULL DEFAULT '',
	sent_to_ai      boolean     NOT NULL DEFAULT false,
	created_at      timestamptz NOT NULL DEFAULT now(),
	UNIQUE (conversation_id, author, ts)
);
CREATE INDEX IF NOT EXISTS chat_messages_conversation_ts ON chat_messages (conversation_id, ts DESC);
`

// EnsureSchema creates the archive table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
