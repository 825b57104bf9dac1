package leaderboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spacemeshos/go-scale"

	"github.com/okian/hiscore/pkg/logger"
	"github.com/okian/hiscore/pkg/metrics"
)

// sendCursor is the global position of the outbound transfer.
type sendCursor struct {
	list  int
	entry int
}

// Store owns a fixed set of RankedLists, one per category, addressed by index.
//
// All structural mutation of the lists (merges, cursor resets and advances)
// and full serialization run under one mutex. The mutex is never held while
// waiting on a transport or persistence medium: record readers and writers
// are expected to be in-memory packet buffers, and WriteTo serializes into a
// buffer before copying it out.
type Store struct {
	mu       sync.Mutex
	lists    []*RankedList
	capacity int
	send     sendCursor

	changed atomic.Bool
	syncing atomic.Bool

	persister Persister
	logger    logger.Logger
}

// New creates a store of listCount empty lists, each holding at most capacity entries.
func New(listCount, capacity int, opts ...Option) (*Store, error) {
	if err := validateShape(listCount, capacity); err != nil {
		return nil, err
	}
	s := newStore(capacity, opts)
	s.lists = make([]*RankedList, listCount)
	for i := range s.lists {
		s.lists[i] = newRankedList(capacity)
	}
	return s, nil
}

// Load reconstructs a store from a snapshot written by WriteTo. Capacity is
// not part of the snapshot and must be supplied.
func Load(r io.Reader, capacity int, opts ...Option) (*Store, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: capacity %d", ErrInvalidConfig, capacity)
	}
	dec := scale.NewDecoder(r)
	count, _, err := scale.DecodeUint32(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: list count: %w", ErrCorruptSnapshot, err)
	}
	if count == 0 || count > MaxLists {
		return nil, fmt.Errorf("%w: list count %d", ErrCorruptSnapshot, count)
	}

	s := newStore(capacity, opts)
	s.lists = make([]*RankedList, count)
	for i := range s.lists {
		l, err := decodeRankedList(dec, capacity)
		if err != nil {
			return nil, fmt.Errorf("%w: list %d: %w", ErrCorruptSnapshot, i, err)
		}
		s.lists[i] = l
	}
	return s, nil
}

func newStore(capacity int, opts []Option) *Store {
	s := &Store{
		capacity: capacity,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validateShape(listCount, capacity int) error {
	if listCount < 1 || listCount > MaxLists {
		return fmt.Errorf("%w: list count %d not in [1, %d]", ErrInvalidConfig, listCount, MaxLists)
	}
	if capacity < 1 {
		return fmt.Errorf("%w: capacity %d", ErrInvalidConfig, capacity)
	}
	return nil
}

// ListCount returns the number of lists.
func (s *Store) ListCount() int { return len(s.lists) }

// Capacity returns the per-list entry limit.
func (s *Store) Capacity() int { return s.capacity }

func (s *Store) list(i int) *RankedList {
	if i < 0 || i >= len(s.lists) {
		return nil
	}
	return s.lists[i]
}

// Contains reports whether list holds an entry for identity.
func (s *Store) Contains(list int, identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.list(list)
	return l != nil && l.Contains(identity)
}

// Len returns the size of the full list.
func (s *Store) Len(list int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.list(list); l != nil {
		return l.Len()
	}
	return 0
}

// FilteredLen returns the number of entries of list whose identity is in set.
func (s *Store) FilteredLen(list int, set IdentitySet) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.list(list); l != nil {
		return l.FilteredLen(set)
	}
	return 0
}

// FillPage fills page from the full list; see RankedList.FillPage.
func (s *Store) FillPage(list, pageNumber int, page []Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.list(list); l != nil {
		return l.FillPage(pageNumber, page)
	}
	clear(page)
	return 0
}

// FillFilteredPage fills page from the filtered list; see RankedList.FillFilteredPage.
func (s *Store) FillFilteredPage(list, pageNumber int, set IdentitySet, page []Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.list(list); l != nil {
		return l.FillFilteredPage(pageNumber, set, page)
	}
	clear(page)
	return 0
}

// FillPageContaining fills the page of the full list holding identity and
// returns its rank, or NotFound with page 0 filled.
func (s *Store) FillPageContaining(list int, identity string, page []Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.list(list); l != nil {
		return l.FillPageContaining(identity, page)
	}
	clear(page)
	return NotFound
}

// FillFilteredPageContaining is the filtered analogue of FillPageContaining.
func (s *Store) FillFilteredPageContaining(list int, identity string, set IdentitySet, page []Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.list(list); l != nil {
		return l.FillFilteredPageContaining(identity, set, page)
	}
	clear(page)
	return NotFound
}

// ReadPage fills page pageNumber of list, filtered to set when set is non-nil,
// and returns the filled count and the length of that view under one lock.
func (s *Store) ReadPage(list, pageNumber int, set IdentitySet, page []Entry) (n, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.list(list)
	switch {
	case l == nil:
		clear(page)
		return 0, 0
	case set != nil:
		return l.FillFilteredPage(pageNumber, set, page), l.FilteredLen(set)
	default:
		return l.FillPage(pageNumber, page), l.Len()
	}
}

// FillPageAround fills the page of list holding identity and returns its
// rank, the page number and the list length under one lock.
func (s *Store) FillPageAround(list int, identity string, page []Entry) (rank, pageNumber, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.list(list); l != nil {
		return l.FillPageAround(identity, page)
	}
	clear(page)
	return NotFound, 0, 0
}

// FillFilteredPageAround fills the filtered page of list holding identity and
// returns its full-list rank, the filtered page number and the filtered
// length under one lock.
func (s *Store) FillFilteredPageAround(list int, identity string, set IdentitySet, page []Entry) (rank, pageNumber, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.list(list); l != nil {
		return l.FillFilteredPageAround(identity, set, page)
	}
	clear(page)
	return NotFound, 0, 0
}

// Entries returns a copy of list in rank order, or nil for an unknown list.
func (s *Store) Entries(list int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.list(list); l != nil {
		return l.Entries()
	}
	return nil
}

// SubmitLocalEntry merges a locally produced entry. When the list changed,
// onChanged is called after the lock is released so a coordinator can push the
// new data out.
func (s *Store) SubmitLocalEntry(list int, e Entry, onChanged func()) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	l := s.list(list)
	if l == nil {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %d", ErrUnknownList, list)
	}
	changed := l.Merge(e)
	size := l.Len()
	s.mu.Unlock()

	metrics.RecordSubmission(list)
	metrics.RecordMerge("local", changed)
	if changed {
		metrics.UpdateListEntries(list, size)
		if onChanged != nil {
			onChanged()
		}
	}
	return changed, nil
}

// WriteTo saves the whole container: uint32 list count, then each list. It
// implements io.WriterTo and is safe to call during a synchronization pass.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if err := s.encode(&buf); err != nil {
		return 0, err
	}
	n, err := w.Write(buf.Bytes())
	if err != nil {
		return int64(n), fmt.Errorf("write snapshot: %w", err)
	}
	return int64(n), nil
}

func (s *Store) encode(buf *bytes.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := scale.NewEncoder(buf)
	if _, err := scale.EncodeUint32(enc, uint32(len(s.lists))); err != nil {
		return fmt.Errorf("encode list count: %w", err)
	}
	for i, l := range s.lists {
		if _, err := l.encode(enc); err != nil {
			return fmt.Errorf("encode list %d: %w", i, err)
		}
	}
	return nil
}

// Changed reports whether the current or last pass altered any list.
func (s *Store) Changed() bool { return s.changed.Load() }

// Syncing reports whether a synchronization pass is active.
func (s *Store) Syncing() bool { return s.syncing.Load() }

// BeginSync starts a synchronization pass: clears the changed flag and rewinds
// every list's transfer cursor.
func (s *Store) BeginSync() error {
	if !s.syncing.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	s.changed.Store(false)

	s.mu.Lock()
	for _, l := range s.lists {
		l.beginTransferPass()
	}
	s.mu.Unlock()
	return nil
}

// EndSync finishes the pass. If the pass changed anything the store is handed
// to the persister; the changed flag is cleared only when that succeeds. The
// pass is over either way.
func (s *Store) EndSync(ctx context.Context) error {
	if !s.syncing.Load() {
		return ErrSyncNotActive
	}
	defer s.syncing.Store(false)

	if !s.changed.Load() {
		return nil
	}
	if s.persister == nil {
		s.changed.Store(false)
		return nil
	}

	start := time.Now()
	if err := s.persister.Persist(ctx, s); err != nil {
		s.logger.Error(ctx, "persisting after sync failed", logger.Error(err))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.changed.Store(false)
	s.logger.Debug(ctx, "persisted after sync", logger.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return nil
}

// PrepareSend rewinds the outbound transfer to the first entry of list 0.
func (s *Store) PrepareSend() {
	s.mu.Lock()
	s.send = sendCursor{}
	s.mu.Unlock()
}

// ReadInboundRecord decodes one record from dec and applies it. It returns
// true once the CONTAINER_END marker is read.
//
// Malformed records are dropped without error: an ENTRY addressed to a list
// that does not exist (its payload is still consumed), an ENTRY whose payload
// fails validation, and any unknown marker. Decoder failures such as a
// truncated record are returned wrapped in ErrDecodeRecord.
func (s *Store) ReadInboundRecord(dec *scale.Decoder) (bool, error) {
	marker, _, err := scale.DecodeByte(dec)
	if err != nil {
		return false, fmt.Errorf("%w: marker: %w", ErrDecodeRecord, err)
	}

	switch marker {
	case MarkerContainerEnd:
		return true, nil
	case MarkerEntry:
		return false, s.readEntryRecord(dec)
	default:
		metrics.RecordMalformedRecord("unknown_marker")
		s.logger.Debug(context.Background(), "dropping record with unknown marker", logger.Int("marker", int(marker)))
		return false, nil
	}
}

func (s *Store) readEntryRecord(dec *scale.Decoder) error {
	idx, _, err := scale.DecodeByte(dec)
	if err != nil {
		return fmt.Errorf("%w: list index: %w", ErrDecodeRecord, err)
	}

	s.mu.Lock()
	l := s.list(int(idx))
	if l == nil {
		s.mu.Unlock()
		var discard Entry
		if _, err := discard.DecodeScale(dec); err != nil && !errors.Is(err, ErrInvalidEntry) {
			return fmt.Errorf("%w: %w", ErrDecodeRecord, err)
		}
		metrics.RecordMalformedRecord("list_index")
		s.logger.Debug(context.Background(), "dropping record for unknown list", logger.Int("list", int(idx)))
		return nil
	}
	changed, err := l.mergeInboundEntry(dec)
	size := l.Len()
	s.mu.Unlock()

	switch {
	case errors.Is(err, ErrInvalidEntry):
		metrics.RecordMalformedRecord("invalid_entry")
		s.logger.Debug(context.Background(), "dropping invalid entry record", logger.Int("list", int(idx)), logger.Error(err))
		return nil
	case err != nil:
		return fmt.Errorf("%w: %w", ErrDecodeRecord, err)
	}

	metrics.RecordRecordReceived()
	metrics.RecordMerge("sync", changed)
	if changed {
		s.changed.Store(true)
		metrics.UpdateListEntries(int(idx), size)
	}
	return nil
}

// WriteOutboundRecord writes the next record of the pass to enc. It returns
// false after writing one ENTRY and true after writing CONTAINER_END. Lists
// are sent in index order, each from rank 1 down.
func (s *Store) WriteOutboundRecord(enc *scale.Encoder) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.send.list < len(s.lists) {
		next, err := s.lists[s.send.list].writeNextOutboundEntry(enc, s.send.list)
		if err != nil {
			return false, err
		}
		if next != Exhausted {
			s.send.entry = next
			metrics.RecordRecordSent()
			return false, nil
		}
		s.send.list++
		s.send.entry = 0
	}

	if err := encodeContainerEnd(enc); err != nil {
		return false, err
	}
	return true, nil
}
