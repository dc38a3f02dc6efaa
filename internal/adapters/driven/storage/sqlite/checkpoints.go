package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Checkpoint returns the stored replication checkpoint for the given id,
// or "" when none has been saved.
func (s *Store) Checkpoint(ctx context.Context, id string) (string, error) {
	var seq string
	row := s.db.QueryRowContext(ctx, "SELECT seq FROM checkpoints WHERE id = ?", id)
	err := row.Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading checkpoint %s: %w", id, err)
	}
	return seq, nil
}

// SaveCheckpoint persists a replication checkpoint.
func (s *Store) SaveCheckpoint(ctx context.Context, id, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, seq) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET seq = excluded.seq
	`, id, value)
	if err != nil {
		return fmt.Errorf("saving checkpoint %s: %w", id, err)
	}
	return nil
}

// ClearCheckpoints discards all replication checkpoints, forcing the next
// session to start from the beginning.
func (s *Store) ClearCheckpoints(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints"); err != nil {
		return fmt.Errorf("clearing checkpoints: %w", err)
	}
	return nil
}
