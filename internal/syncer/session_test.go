package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/spacemeshos/go-scale"
	"github.com/stretchr/testify/require"

	"github.com/okian/hiscore/internal/domain/leaderboard"
	"github.com/okian/hiscore/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type countingPersister struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPersister) Persist(_ context.Context, src io.WriterTo) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	_, err := src.WriteTo(io.Discard)
	return err
}

func (p *countingPersister) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newStore(t *testing.T, opts ...leaderboard.Option) *leaderboard.Store {
	t.Helper()
	s, err := leaderboard.New(3, 50, opts...)
	require.NoError(t, err)
	return s
}

func fill(t *testing.T, s *leaderboard.Store, prefix string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := s.SubmitLocalEntry(i%3, leaderboard.Entry{
			Identity: fmt.Sprintf("%s%d", prefix, i),
			Score:    int64(i * 7 % 13),
		}, nil)
		require.NoError(t, err)
	}
}

func runPair(t *testing.T, a, b *leaderboard.Store, opts ...Option) (error, error) {
	t.Helper()
	ta, tb := Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(2)
	go func() {
		defer wg.Done()
		errA = NewSession(a, opts...).Run(ctx, ta)
	}()
	go func() {
		defer wg.Done()
		errB = NewSession(b, opts...).Run(ctx, tb)
	}()
	wg.Wait()
	return errA, errB
}

func TestSession_Converges(t *testing.T) {
	for _, perPacket := range []int{1, 3, DefaultRecordsPerPacket, 1000} {
		t.Run(fmt.Sprintf("records_per_packet=%d", perPacket), func(t *testing.T) {
			pa, pb := &countingPersister{}, &countingPersister{}
			a := newStore(t, leaderboard.WithPersister(pa))
			b := newStore(t, leaderboard.WithPersister(pb))
			fill(t, a, "a", 25)
			fill(t, b, "b", 40)
			_, err := b.SubmitLocalEntry(0, leaderboard.Entry{Identity: "a0", Score: 100}, nil)
			require.NoError(t, err)

			errA, errB := runPair(t, a, b, WithRecordsPerPacket(perPacket))
			require.NoError(t, errA)
			require.NoError(t, errB)

			for list := 0; list < 3; list++ {
				require.Equal(t, b.Entries(list), a.Entries(list), "list %d", list)
			}
			require.Equal(t, int64(100), a.Entries(0)[0].Score)
			require.False(t, a.Syncing())
			require.False(t, b.Syncing())
			require.Equal(t, 1, pa.Calls())
			require.Equal(t, 1, pb.Calls())

			// a second pass finds nothing new
			errA, errB = runPair(t, a, b, WithRecordsPerPacket(perPacket))
			require.NoError(t, errA)
			require.NoError(t, errB)
			require.Equal(t, 1, pa.Calls())
			require.Equal(t, 1, pb.Calls())
		})
	}
}

func TestSession_EmptyStores(t *testing.T) {
	a, b := newStore(t), newStore(t)
	errA, errB := runPair(t, a, b)
	require.NoError(t, errA)
	require.NoError(t, errB)
	require.False(t, a.Changed())
}

func TestSession_PassInProgress(t *testing.T) {
	a := newStore(t)
	require.NoError(t, a.BeginSync())

	ta, _ := Pipe()
	err := NewSession(a).Run(context.Background(), ta)
	require.ErrorIs(t, err, leaderboard.ErrSyncInProgress)
	require.True(t, a.Syncing())
}

func TestSession_PeerGone(t *testing.T) {
	a := newStore(t)
	fill(t, a, "a", 100)

	ta, tb := Pipe()
	require.NoError(t, tb.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := NewSession(a, WithRecordsPerPacket(1)).Run(ctx, ta)
	require.ErrorIs(t, err, ErrTransportClosed)
	require.False(t, a.Syncing())
}

// scriptedTransport delivers fixed packets then fails.
type scriptedTransport struct {
	mu      sync.Mutex
	packets [][]byte
	err     error
}

func (s *scriptedTransport) Send(context.Context, []byte) error { return nil }

func (s *scriptedTransport) Receive(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.packets) == 0 {
		return nil, s.err
	}
	pkt := s.packets[0]
	s.packets = s.packets[1:]
	return pkt, nil
}

func entryPacket(t *testing.T, entries ...leaderboard.Entry) []byte {
	t.Helper()
	src, err := leaderboard.New(1, len(entries)+1)
	require.NoError(t, err)
	for _, e := range entries {
		_, err := src.SubmitLocalEntry(0, e, nil)
		require.NoError(t, err)
	}
	require.NoError(t, src.BeginSync())
	src.PrepareSend()

	var buf bytes.Buffer
	enc := scale.NewEncoder(&buf)
	for range entries {
		done, err := src.WriteOutboundRecord(enc)
		require.NoError(t, err)
		require.False(t, done)
	}
	return buf.Bytes()
}

func TestSession_PartialPassPersists(t *testing.T) {
	p := &countingPersister{}
	a := newStore(t, leaderboard.WithPersister(p))
	broken := errors.New("link dropped")
	tr := &scriptedTransport{
		packets: [][]byte{entryPacket(t,
			leaderboard.Entry{Identity: "x", Score: 3},
			leaderboard.Entry{Identity: "y", Score: 2},
		)},
		err: broken,
	}

	err := NewSession(a).Run(context.Background(), tr)
	require.ErrorIs(t, err, broken)
	require.True(t, a.Contains(0, "x"))
	require.True(t, a.Contains(0, "y"))
	require.Equal(t, 1, p.Calls())
	require.False(t, a.Syncing())
}

func TestSession_Cancelled(t *testing.T) {
	a := newStore(t)
	ta, _ := Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSession(a).Run(ctx, ta)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, a.Syncing())
}

func TestSession_ID(t *testing.T) {
	a := newStore(t)
	require.NotEmpty(t, NewSession(a).ID())
	require.NotEqual(t, NewSession(a).ID(), NewSession(a).ID())
	require.Equal(t, "fixed", NewSession(a, WithSessionID("fixed")).ID())
}

// snapshotPersister loads every snapshot it is handed back into a store.
type snapshotPersister struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *snapshotPersister) Persist(_ context.Context, src io.WriterTo) error {
	var buf bytes.Buffer
	_, err := src.WriteTo(&buf)
	if err == nil {
		_, err = leaderboard.Load(&buf, 50)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if err != nil && p.err == nil {
		p.err = err
	}
	return err
}

func TestSession_ConcurrentSubmitAndSave(t *testing.T) {
	pa, pb := &snapshotPersister{}, &snapshotPersister{}
	a := newStore(t, leaderboard.WithPersister(pa))
	b := newStore(t, leaderboard.WithPersister(pb))
	fill(t, a, "a", 30)
	fill(t, b, "b", 30)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for w, s := range []*leaderboard.Store{a, b, a, b} {
		wg.Add(1)
		go func(w int, s *leaderboard.Store) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				e := leaderboard.Entry{Identity: fmt.Sprintf("w%d-%d", w, i%40), Score: int64(i % 97)}
				if _, err := s.SubmitLocalEntry(i%3, e, nil); err != nil {
					t.Errorf("submit: %v", err)
					return
				}
			}
		}(w, s)
	}
	for _, s := range []*leaderboard.Store{a, b} {
		wg.Add(1)
		go func(s *leaderboard.Store) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				var buf bytes.Buffer
				if _, err := s.WriteTo(&buf); err != nil {
					t.Errorf("save: %v", err)
					return
				}
				if _, err := leaderboard.Load(&buf, 50); err != nil {
					t.Errorf("load: %v", err)
					return
				}
			}
		}(s)
	}

	for i := 0; i < 5; i++ {
		errA, errB := runPair(t, a, b, WithRecordsPerPacket(2))
		require.NoError(t, errA)
		require.NoError(t, errB)
	}
	close(stop)
	wg.Wait()

	// once quiet, two passes bring the stores together
	for i := 0; i < 2; i++ {
		errA, errB := runPair(t, a, b, WithRecordsPerPacket(2))
		require.NoError(t, errA)
		require.NoError(t, errB)
	}
	for list := 0; list < 3; list++ {
		require.Equal(t, b.Entries(list), a.Entries(list), "list %d", list)
		require.LessOrEqual(t, len(a.Entries(list)), 50)
	}
	require.NoError(t, pa.err)
	require.NoError(t, pb.err)
	require.Positive(t, pa.calls)
}
