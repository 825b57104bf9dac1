package repository

import (
	"github.com/spf13/afero"

	"github.com/okian/hiscore/pkg/logger"
)

// DefaultFileName is the snapshot file name used when none is configured.
const DefaultFileName = "leaderboards.bin"

// Option applies a configuration option to the FileStore.
type Option func(*FileStore)

// WithFs sets the filesystem snapshots are written to.
func WithFs(fs afero.Fs) Option {
	return func(s *FileStore) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// WithFileName sets the snapshot file name inside the data directory.
func WithFileName(name string) Option {
	return func(s *FileStore) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *FileStore) {
		if l != nil {
			s.logger = l
		}
	}
}
