// Package service wires the leaderboard store, its persistence, the local
// submission pipeline and peer synchronization, and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	eventqueue "github.com/okian/hiscore/internal/adapters/mq/queue"
	workerpool "github.com/okian/hiscore/internal/adapters/mq/worker"
	"github.com/okian/hiscore/internal/adapters/repository"
	"github.com/okian/hiscore/internal/domain/dedupe"
	"github.com/okian/hiscore/internal/domain/leaderboard"
	"github.com/okian/hiscore/internal/domain/model"
	"github.com/okian/hiscore/internal/syncer"
	"github.com/okian/hiscore/pkg/logger"
	"github.com/okian/hiscore/pkg/metrics"
)

// Defaults used when no option overrides them.
const (
	DefaultListCount    = 4
	DefaultListCapacity = 100
	DefaultSaveInterval = 5 * time.Second
	DefaultDataDir      = "./data"
)

// Service implements the API dependencies for the leaderboard system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store       *leaderboard.Store
	files       *repository.FileStore
	deduper     dedupe.Deduper
	queue       *eventqueue.InMemoryQueue
	workerPool  *workerpool.Pool
	coordinator *syncer.Coordinator

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	listCount        int
	listCapacity     int
	dataDir          string
	snapshotFile     string
	saveInterval     time.Duration
	syncInterval     time.Duration
	recordsPerPacket int
	dial             syncer.DialFunc
	fs               afero.Fs

	// State
	started bool
	dirty   atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU(),
		queueSize:        100_000,
		dedupeSize:       dedupe.DefaultMaxSize,
		listCount:        DefaultListCount,
		listCapacity:     DefaultListCapacity,
		dataDir:          DefaultDataDir,
		snapshotFile:     repository.DefaultFileName,
		saveInterval:     DefaultSaveInterval,
		syncInterval:     syncer.DefaultMinInterval,
		recordsPerPacket: syncer.DefaultRecordsPerPacket,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads or creates the store and starts the workers, the background
// saver and, when a dialer is set, the sync coordinator.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}

	s.logger.Info(ctx, "starting leaderboard service...")

	files, err := repository.NewFileStore(s.dataDir,
		repository.WithFs(s.fs),
		repository.WithFileName(s.snapshotFile),
		repository.WithLogger(s.logger.Named("repository")),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartStore, err)
	}
	store, err := s.openStore(ctx, files)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartStore, err)
	}
	s.files = files
	s.store = store

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	if s.dial != nil {
		s.coordinator = syncer.NewCoordinator(&syncReplica{Store: store, svc: s}, s.dial,
			syncer.WithMinInterval(s.syncInterval),
			syncer.WithSessionOptions(syncer.WithRecordsPerPacket(s.recordsPerPacket)),
			syncer.WithCoordinatorLogger(s.logger.Named("sync")),
		)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.coordinator.Run(runCtx); err != nil {
				s.logger.Error(runCtx, "sync coordinator stopped", logger.Error(err))
			}
		}()
	}

	s.workerPool = workerpool.NewPool(s.workerCount, s.queue, store,
		workerpool.WithOnChanged(s.markChanged),
		workerpool.WithLogger(s.logger.Named("worker")),
	)
	s.workerPool.Start(runCtx)

	if s.saveInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.saveLoop(runCtx)
		}()
	}

	s.started = true
	s.logger.Info(ctx, "leaderboard service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("lists", store.ListCount()),
		logger.Int("capacity", store.Capacity()),
		logger.String("snapshot", files.Path()),
		logger.Bool("sync", s.coordinator != nil),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context, files *repository.FileStore) (*leaderboard.Store, error) {
	opts := []leaderboard.Option{
		leaderboard.WithPersister(files),
		leaderboard.WithLogger(s.logger.Named("leaderboard")),
	}

	rc, err := files.Open(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Info(ctx, "no snapshot found, creating empty store", logger.String("path", files.Path()))
		return leaderboard.New(s.listCount, s.listCapacity, opts...)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	store, err := leaderboard.Load(rc, s.listCapacity, opts...)
	if err != nil {
		return nil, err
	}
	if store.ListCount() != s.listCount {
		s.logger.Warn(ctx, "snapshot list count differs from configuration",
			logger.Int("snapshot", store.ListCount()),
			logger.Int("configured", s.listCount))
	}
	return store, nil
}

// markChanged is the onChanged hook for local merges.
func (s *Service) markChanged() {
	s.dirty.Store(true)
	if s.coordinator != nil {
		s.coordinator.MarkDirty()
	}
}

// syncReplica hands a failed post-sync persist over to the periodic saver.
type syncReplica struct {
	*leaderboard.Store
	svc *Service
}

// BeginSync carries changes left unsaved by an earlier pass into the dirty
// flag before the store resets its own.
func (r *syncReplica) BeginSync() error {
	if r.Changed() {
		r.svc.dirty.Store(true)
	}
	return r.Store.BeginSync()
}

func (r *syncReplica) EndSync(ctx context.Context) error {
	err := r.Store.EndSync(ctx)
	if errors.Is(err, leaderboard.ErrPersist) {
		r.svc.dirty.Store(true)
	}
	return err
}

func (s *Service) saveLoop(ctx context.Context) {
	ticker := time.NewTicker(s.saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.saveIfDirty(ctx); err != nil {
				s.logger.Error(ctx, "periodic save failed", logger.Error(err))
			}
		}
	}
}

// saveIfDirty persists the store when local merges happened since the last
// save. A failed save leaves the store dirty.
func (s *Service) saveIfDirty(ctx context.Context) error {
	if !s.dirty.Swap(false) {
		return nil
	}
	if err := s.files.Persist(ctx, s.store); err != nil {
		s.dirty.Store(true)
		return err
	}
	return nil
}

// Save persists the store unconditionally.
func (s *Service) Save(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	s.dirty.Store(false)
	if err := s.files.Persist(ctx, s.store); err != nil {
		s.dirty.Store(true)
		return err
	}
	return nil
}

// Stop drains the workers, stops background loops and saves pending changes.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping leaderboard service...")

	var errs []error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	s.wg.Wait()

	if err := s.saveIfDirty(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error(ctx, "final save failed", logger.Error(err))
		errs = append(errs, err)
	}

	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped")
	return errors.Join(errs...)
}

// Store returns the leaderboard store. It is nil before Start.
func (s *Service) Store() *leaderboard.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// Coordinator returns the sync coordinator, or nil when sync is disabled.
func (s *Service) Coordinator() *syncer.Coordinator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coordinator
}

// SeenAndRecord atomically checks if a submission id was seen and records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordSubmissionDuplicate()
	}
	return seen
}

// Unrecord removes a submission ID from the seen list, allowing it to be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Enqueue submits a submission for asynchronous merging.
func (s *Service) Enqueue(ctx context.Context, sub model.Submission) bool {
	s.logger.Debug(ctx, "enqueueing submission",
		logger.String("submissionID", sub.SubmissionID),
		logger.Int("list", sub.List),
		logger.String("identity", sub.Identity),
		logger.Int64("score", sub.Score),
	)
	return s.queue.Enqueue(ctx, sub)
}

// ListCount returns the number of lists in the store.
func (s *Service) ListCount() int { return s.store.ListCount() }

// Len returns the number of entries in list.
func (s *Service) Len(list int) int { return s.store.Len(list) }

// ReadPage fills a page of list, filtered to set when non-nil, with its total.
func (s *Service) ReadPage(list, pageNumber int, set leaderboard.IdentitySet, page []leaderboard.Entry) (n, total int) {
	return s.store.ReadPage(list, pageNumber, set, page)
}

// FillPageAround fills the page of list holding identity.
func (s *Service) FillPageAround(list int, identity string, page []leaderboard.Entry) (rank, pageNumber, total int) {
	return s.store.FillPageAround(list, identity, page)
}

// FillFilteredPageAround fills the filtered page of list holding identity.
func (s *Service) FillFilteredPageAround(list int, identity string, set leaderboard.IdentitySet, page []leaderboard.Entry) (rank, pageNumber, total int) {
	return s.store.FillFilteredPageAround(list, identity, set, page)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if !s.started {
		return stats
	}

	lists := make([]int, s.store.ListCount())
	for i := range lists {
		lists[i] = s.store.Len(i)
	}
	queueLen := s.queue.Len(ctx)

	stats["queueLength"] = queueLen
	stats["processed"] = s.workerPool.Processed()
	stats["seen"] = s.deduper.Size()
	stats["lists"] = lists
	stats["capacity"] = s.store.Capacity()
	stats["unsaved"] = s.dirty.Load()
	if s.coordinator != nil {
		stats["sync"] = s.coordinator.Stats()
	}

	metrics.UpdateQueueSize(queueLen)
	return stats
}
