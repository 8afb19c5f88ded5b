// Package storage keeps a ledger of publish and discard attempts in Postgres.
//
// The queue itself lives in the spreadsheet; the ledger only lets operators
// see what was published when and spot rows that were posted but never
// marked as sent.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"autoposter/internal/models"
)

type Attempt struct {
	ID         uuid.UUID       `json:"id"`
	Platform   models.Platform `json:"platform"`
	Trigger    models.Trigger  `json:"trigger"`
	State      string          `json:"state"`
	Position   int             `json:"position"`
	Identifier string          `json:"identifier"`
	Effect     string          `json:"effect"`
	Message    string          `json:"message"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PublishedStates are the ledger states in which a post went out.
var PublishedStates = []string{"sheet_updated", "sheet_update_failed"}

type Storage struct {
	pool *pgxpool.Pool
}

func NewStorage(ctx context.Context, dsn string, logger zerolog.Logger) (*Storage, error) {
	const op = "storage.NewStorage"

	if err := RunMigrations(dsn, logger); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
}

func (s *Storage) Record(ctx context.Context, a Attempt) error {
	const op = "storage.Record"

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO publish_attempts (id, platform, trigger, state, position, identifier, effect, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, string(a.Platform), string(a.Trigger), a.State, a.Position, a.Identifier, a.Effect, a.Message, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

// PublishedBefore reports whether the ledger already holds a successful post
// for this exact row.
func (s *Storage) PublishedBefore(ctx context.Context, platform models.Platform, position int, identifier string) (bool, error) {
	const op = "storage.PublishedBefore"

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM publish_attempts
			WHERE platform = $1 AND position = $2 AND identifier = $3 AND state = ANY($4)
		)`,
		string(platform), position, identifier, PublishedStates).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %v", op, err)
	}
	return exists, nil
}

func (s *Storage) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	const op = "storage.Recent"

	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, platform, trigger, state, position, identifier, effect, message, created_at
		FROM publish_attempts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a                 Attempt
			platform, trigger string
		)
		if err := rows.Scan(&a.ID, &platform, &trigger, &a.State, &a.Position, &a.Identifier, &a.Effect, &a.Message, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %v", op, err)
		}
		a.Platform = models.Platform(platform)
		a.Trigger = models.Trigger(trigger)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return out, nil
}
