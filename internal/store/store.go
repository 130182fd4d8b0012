package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/interviewer/internal/interview"
)

// Schema creates the tables the store reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS interviews (
	id          BIGSERIAL PRIMARY KEY,
	user_id     TEXT NOT NULL,
	company     TEXT NOT NULL,
	position    TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'PENDING'
);

CREATE TABLE IF NOT EXISTS interview_rounds (
	id           BIGSERIAL PRIMARY KEY,
	interview_id BIGINT NOT NULL REFERENCES interviews(id),
	round_number INT NOT NULL,
	session_id   TEXT,
	status       TEXT NOT NULL DEFAULT 'PENDING',
	result       TEXT,
	notes        TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS interview_conversations (
	id                BIGSERIAL PRIMARY KEY,
	interview_id      BIGINT NOT NULL REFERENCES interviews(id),
	round_id          BIGINT NOT NULL REFERENCES interview_rounds(id),
	session_id        TEXT NOT NULL UNIQUE,
	conversation_text TEXT NOT NULL DEFAULT '[]',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interview_rounds_interview ON interview_rounds(interview_id);
`

// Store is the Postgres backed conversation store and round lookup.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate applies Schema. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// notFound translates pgx.ErrNoRows into interview.ErrNotFound.
func notFound(err error, what string, key any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, key, interview.ErrNotFound)
	}
	return fmt.Errorf("query %s %v: %w", what, key, err)
}
