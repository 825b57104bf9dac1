// Package repository persists leaderboard snapshots to durable storage.
package repository

import (
	"context"
	"io"
)

// Store saves and restores whole-container snapshots. Implementations must
// leave the previous snapshot readable if a Persist fails part way.
type Store interface {
	// Persist writes src as the current snapshot.
	Persist(ctx context.Context, src io.WriterTo) error
	// Open returns the current snapshot. Returns ErrNotFound if none was saved.
	Open(ctx context.Context) (io.ReadCloser, error)
}
