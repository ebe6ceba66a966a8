package storage

import (
	"context"
	"fmt"
)

// LogRun implements Storage. All entries of a run are inserted in one
// transaction so a partially recorded run never appears in the history.
func (s *SQLiteStorage) LogRun(ctx context.Context, runID string, entries []HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO resolution_history
		(run_id, service, change_kind, old_version, old_digest, new_version, new_digest)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		_, err := stmt.ExecContext(ctx,
			runID, entry.Service, entry.Kind,
			entry.OldVersion, entry.OldDigest,
			entry.NewVersion, entry.NewDigest,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert history entry for %s: %w", entry.Service, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Debug().Str("run_id", runID).Int("entries", len(entries)).Msg("recorded run history")
	return nil
}

// GetHistory implements Storage.
func (s *SQLiteStorage) GetHistory(ctx context.Context, service string, limit int) ([]HistoryEntry, error) {
	query := `
		SELECT id, run_id, service, change_kind, old_version, old_digest, new_version, new_digest, resolved_at
		FROM resolution_history
		WHERE service = ?
		ORDER BY resolved_at DESC, id DESC
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, query, service, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", service, err)
	}
	defer rows.Close()

	return scanHistory(rows)
}

// GetAllHistory implements Storage.
func (s *SQLiteStorage) GetAllHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	query := `
		SELECT id, run_id, service, change_kind, old_version, old_digest, new_version, new_digest, resolved_at
		FROM resolution_history
		ORDER BY resolved_at DESC, id DESC
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	return scanHistory(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanHistory(rows rowScanner) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		err := rows.Scan(
			&e.ID, &e.RunID, &e.Service, &e.Kind,
			&e.OldVersion, &e.OldDigest, &e.NewVersion, &e.NewDigest,
			&e.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
