package syncer

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/hiscore/pkg/logger"
)

// DefaultMinInterval is the default minimum spacing between pass starts.
const DefaultMinInterval = 2 * time.Second

// Stats summarises the passes a Coordinator has run.
type Stats struct {
	Passes     uint64    `json:"passes"`
	Failures   uint64    `json:"failures"`
	LastError  string    `json:"last_error,omitempty"`
	LastPassAt time.Time `json:"last_pass_at"`
}

// Coordinator starts a pass whenever local data changed, no more often than
// the configured interval. Dirty signals arriving during a pass coalesce into
// one follow-up pass.
type Coordinator struct {
	replica     Replica
	dial        DialFunc
	dirty       chan struct{}
	minInterval time.Duration
	sessionOpts []Option
	logger      logger.Logger

	mu    sync.Mutex
	stats Stats
}

// NewCoordinator creates a coordinator that dials the peer with dial.
func NewCoordinator(replica Replica, dial DialFunc, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		replica:     replica,
		dial:        dial,
		dirty:       make(chan struct{}, 1),
		minInterval: DefaultMinInterval,
		logger:      logger.Get().Named("sync.coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MarkDirty requests a pass. It never blocks and is suitable as the
// onChanged callback of a local submission.
func (c *Coordinator) MarkDirty() {
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

// Run serves dirty signals until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Every(c.minInterval), 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.dirty:
		}
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.RunOnce(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn(ctx, "sync pass did not complete", logger.Error(err))
		}
	}
}

// RunOnce dials the peer and runs a single pass.
func (c *Coordinator) RunOnce(ctx context.Context) error {
	if c.dial == nil {
		return ErrNoDialer
	}
	t, err := c.dial(ctx)
	if err != nil {
		c.record(err)
		return err
	}
	if closer, ok := t.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	err = NewSession(c.replica, c.sessionOpts...).Run(ctx, t)
	c.record(err)
	return err
}

func (c *Coordinator) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Passes++
	c.stats.LastPassAt = time.Now()
	c.stats.LastError = ""
	if err != nil {
		c.stats.Failures++
		c.stats.LastError = err.Error()
	}
}

// Stats returns a copy of the pass counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
