package service

import (
	"time"

	"github.com/spf13/afero"

	"github.com/okian/hiscore/internal/syncer"
	"github.com/okian/hiscore/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of merge workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the submission queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the submission ID cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLists sets the shape of a freshly created store. A loaded snapshot
// keeps its own list count.
func WithLists(count, capacity int) Option {
	return func(s *Service) {
		if count > 0 {
			s.listCount = count
		}
		if capacity > 0 {
			s.listCapacity = capacity
		}
	}
}

// WithDataDir sets where the snapshot is kept.
func WithDataDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.dataDir = dir
		}
	}
}

// WithSnapshotFile sets the snapshot file name inside the data dir.
func WithSnapshotFile(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.snapshotFile = name
		}
	}
}

// WithSaveInterval sets the period of the background saver. Zero disables it.
func WithSaveInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.saveInterval = d
		}
	}
}

// WithFs sets the filesystem used for snapshots.
func WithFs(fs afero.Fs) Option {
	return func(s *Service) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// WithDialer enables peer synchronization over transports returned by dial.
func WithDialer(dial syncer.DialFunc) Option {
	return func(s *Service) {
		s.dial = dial
	}
}

// WithSyncMinInterval sets the minimum spacing between sync passes.
func WithSyncMinInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.syncInterval = d
		}
	}
}

// WithRecordsPerPacket sets how many sync records share one packet.
func WithRecordsPerPacket(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.recordsPerPacket = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
