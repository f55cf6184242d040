// Package archive persists spoken commentary lines so a match transcript
// can be rebuilt after the fact. The archive is optional; when disabled
// the pipeline runs with no database at all.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hypecast/caster/internal/domain"
)

// TranscriptLine is one spoken line as stored.
type TranscriptLine struct {
	ID       uuid.UUID
	EventID  uuid.UUID
	Kind     domain.EventKind
	Priority string
	Text     string
	Provider string
	Attempts int
	SpokenAt time.Time
}

// Store writes and reads transcript lines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a transcript store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Insert persists one spoken line.
func (s *Store) Insert(ctx context.Context, line TranscriptLine) error {
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}
	if line.SpokenAt.IsZero() {
		line.SpokenAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcript_lines (id, event_id, kind, priority, text, provider, attempts, spoken_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		line.ID, line.EventID, string(line.Kind), line.Priority,
		line.Text, line.Provider, line.Attempts, line.SpokenAt,
	)
	if err != nil {
		return fmt.Errorf("insert transcript line: %w", err)
	}
	return nil
}

// Recent returns the most recently spoken lines, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]TranscriptLine, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, kind, priority, text, provider, attempts, spoken_at
		FROM transcript_lines
		ORDER BY spoken_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcript lines: %w", err)
	}
	defer rows.Close()

	var out []TranscriptLine
	for rows.Next() {
		var line TranscriptLine
		var kind string
		if err := rows.Scan(&line.ID, &line.EventID, &kind, &line.Priority,
			&line.Text, &line.Provider, &line.Attempts, &line.SpokenAt); err != nil {
			return nil, fmt.Errorf("scan transcript line: %w", err)
		}
		line.Kind = domain.EventKind(kind)
		out = append(out, line)
	}
	return out, rows.Err()
}
