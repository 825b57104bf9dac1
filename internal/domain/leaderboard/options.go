package leaderboard

import (
	"context"
	"io"

	"github.com/okian/hiscore/pkg/logger"
)

// Persister durably stores a full snapshot of the container. Store calls it
// from EndSync when a pass changed anything.
type Persister interface {
	Persist(ctx context.Context, src io.WriterTo) error
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithPersister sets the adapter used to save the store after a changing pass.
func WithPersister(p Persister) Option {
	return func(s *Store) {
		if p != nil {
			s.persister = p
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}
