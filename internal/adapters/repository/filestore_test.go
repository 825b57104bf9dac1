package repository

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/spf13/afero"

	"github.com/okian/hiscore/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type bytesSource []byte

func (b bytesSource) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b)
	return int64(n), err
}

type failingSource struct{}

func (failingSource) WriteTo(w io.Writer) (int64, error) {
	_, _ = w.Write([]byte("partial"))
	return 0, errors.New("encoder exploded")
}

func readAll(t *testing.T, s *FileStore) []byte {
	t.Helper()
	rc, err := s.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func TestFileStore_RequiresDir(t *testing.T) {
	if _, err := NewFileStore(""); !errors.Is(err, ErrEmptyPath) {
		t.Errorf("expected ErrEmptyPath, got %v", err)
	}
}

func TestFileStore_PersistAndOpen(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := NewFileStore("/data/hiscore", WithFs(fs))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if _, err := s.Open(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first save, got %v", err)
	}

	if err := s.Persist(ctx, bytesSource("first")); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if got := readAll(t, s); !bytes.Equal(got, []byte("first")) {
		t.Errorf("expected first, got %q", got)
	}

	if err := s.Persist(ctx, bytesSource("second")); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if got := readAll(t, s); !bytes.Equal(got, []byte("second")) {
		t.Errorf("expected second, got %q", got)
	}

	entries, err := afero.ReadDir(fs, "/data/hiscore")
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != DefaultFileName {
		t.Errorf("expected only %s in dir, got %d files", DefaultFileName, len(entries))
	}
}

func TestFileStore_FailedPersistKeepsPrevious(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := NewFileStore("/data", WithFs(fs), WithFileName("boards.bin"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if err := s.Persist(ctx, bytesSource("good")); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := s.Persist(ctx, failingSource{}); !errors.Is(err, ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	if got := readAll(t, s); !bytes.Equal(got, []byte("good")) {
		t.Errorf("expected previous snapshot to survive, got %q", got)
	}

	entries, err := afero.ReadDir(fs, "/data")
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected temp file to be removed, found %d files", len(entries))
	}
}

func TestFileStore_ReadOnlyFs(t *testing.T) {
	s, err := NewFileStore("/data", WithFs(afero.NewReadOnlyFs(afero.NewMemMapFs())))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Persist(context.Background(), bytesSource("x")); !errors.Is(err, ErrWrite) {
		t.Errorf("expected ErrWrite on read-only fs, got %v", err)
	}
}

func TestFileStore_CancelledContext(t *testing.T) {
	s, err := NewFileStore("/data", WithFs(afero.NewMemMapFs()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Persist(ctx, bytesSource("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, err := s.Open(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
