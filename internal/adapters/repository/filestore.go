package repository

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/okian/hiscore/pkg/logger"
	"github.com/okian/hiscore/pkg/metrics"
)

const dirPerm = 0o755

// FileStore keeps a single snapshot file in a directory. Each Persist writes a
// temp file beside the target and renames it into place, so readers only ever
// see a complete snapshot.
type FileStore struct {
	mu     sync.Mutex
	fs     afero.Fs
	dir    string
	name   string
	logger logger.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at dir on the OS filesystem unless
// WithFs says otherwise.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if dir == "" {
		return nil, ErrEmptyPath
	}
	s := &FileStore{
		fs:     afero.NewOsFs(),
		dir:    dir,
		name:   DefaultFileName,
		logger: logger.Get().Named("repository"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the snapshot file path.
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, s.name)
}

// Persist writes src to a temp file, syncs it and renames it over the
// snapshot. On failure the temp file is removed and the old snapshot kept.
func (s *FileStore) Persist(ctx context.Context, src io.WriterTo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	size, err := s.persist(src)
	if err != nil {
		metrics.RecordSaveFailure()
		metrics.RecordErrorByComponent("repository", "persist")
		s.logger.Error(ctx, "snapshot save failed", logger.String("path", s.Path()), logger.Error(err))
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	elapsed := time.Since(start)
	metrics.RecordSave(elapsed, size)
	s.logger.Debug(ctx, "snapshot saved",
		logger.String("path", s.Path()),
		logger.Int64("bytes", size),
		logger.Int64("elapsed_ms", elapsed.Milliseconds()))
	return nil
}

func (s *FileStore) persist(src io.WriterTo) (size int64, err error) {
	if err := s.fs.MkdirAll(s.dir, dirPerm); err != nil {
		return 0, fmt.Errorf("create dir %s: %w", s.dir, err)
	}
	tmp, err := afero.TempFile(s.fs, s.dir, s.name)
	if err != nil {
		return 0, fmt.Errorf("create tmp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = s.fs.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if size, err = src.WriteTo(w); err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}
	if err = w.Flush(); err != nil {
		return 0, fmt.Errorf("flush tmp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync tmp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return 0, fmt.Errorf("close tmp file: %w", err)
	}
	if err = s.fs.Rename(tmp.Name(), s.Path()); err != nil {
		return 0, fmt.Errorf("rename %s to %s: %w", tmp.Name(), s.Path(), err)
	}
	return size, nil
}

// Open returns a reader over the current snapshot.
func (s *FileStore) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", s.Path(), err)
	}
	return f, nil
}
