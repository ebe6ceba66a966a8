// Package storage persists an audit trail of lock synchronization runs in
// SQLite. History is strictly optional: a nil Storage disables it without
// affecting resolution.
package storage

import (
	"context"
	"time"
)

// HistoryEntry is one service-level change recorded by a synchronization run.
type HistoryEntry struct {
	ID         int64
	RunID      string
	Service    string
	Kind       string // "added", "updated" or "removed"
	OldVersion string
	OldDigest  string
	NewVersion string
	NewDigest  string
	ResolvedAt time.Time
}

// Storage defines the persistence operations for run history.
type Storage interface {
	// LogRun records every change of one run atomically.
	LogRun(ctx context.Context, runID string, entries []HistoryEntry) error

	// GetHistory returns a service's history, most recent first.
	GetHistory(ctx context.Context, service string, limit int) ([]HistoryEntry, error)

	// GetAllHistory returns history across all services, most recent first.
	// A limit of 0 means no limit.
	GetAllHistory(ctx context.Context, limit int) ([]HistoryEntry, error)

	// Close releases the underlying database handle.
	Close() error
}
