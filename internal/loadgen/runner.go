package loadgen

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/hiscore/internal/adapters/http/api"
	"github.com/okian/hiscore/internal/domain/leaderboard"
	"github.com/okian/hiscore/pkg/logger"
)

const pollInterval = 100 * time.Millisecond

// Run submits generated scores to the service and waits until every list
// matches the expected ranking. The service should start empty.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	log := logger.Get().Named("loadgen")
	start := time.Now()
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	shape, err := client.Shape(ctx)
	if err != nil {
		return nil, fmt.Errorf("read service shape: %w", err)
	}
	reqs := Generate(cfg, len(shape.Lists))
	stats := &Stats{Generated: len(reqs)}

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("submissions", len(reqs)),
		logger.Int("lists", len(shape.Lists)),
		logger.Int("capacity", shape.Capacity),
		logger.Int("workers", cfg.Workers))

	accepted, err := submit(ctx, client, cfg.Workers, reqs, stats)
	if err != nil {
		return stats, err
	}

	expected, err := leaderboard.New(len(shape.Lists), shape.Capacity)
	if err != nil {
		return stats, err
	}
	for i, req := range reqs {
		if !accepted[i] {
			continue
		}
		if _, err := expected.SubmitLocalEntry(req.List, leaderboard.Entry{Identity: req.Identity, Score: req.Score}, nil); err != nil {
			return stats, fmt.Errorf("expected state: %w", err)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.WaitTimeout)
	defer cancel()
	if err := awaitConvergence(waitCtx, client, expected, stats); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	log.Info(ctx, "load run completed",
		logger.Int64("accepted", stats.Accepted),
		logger.Int64("duplicate", stats.Duplicate),
		logger.Int64("rejected", stats.Rejected),
		logger.Int64("failed", stats.Failed),
		logger.String("duration", stats.Duration.String()))
	return stats, nil
}

// submit posts reqs with at most workers in flight and reports which were
// accepted by the service.
func submit(ctx context.Context, client *Client, workers int, reqs []api.ScoreRequest, stats *Stats) ([]bool, error) {
	accepted := make([]bool, len(reqs))
	var ok, dup, rejected, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i := range reqs {
		g.Go(func() error {
			outcome, err := client.PostScore(gctx, reqs[i])
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				return nil
			}
			switch outcome {
			case OutcomeAccepted:
				accepted[i] = true
				ok.Add(1)
			case OutcomeDuplicate:
				dup.Add(1)
			case OutcomeRejected:
				rejected.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	stats.Accepted = ok.Load()
	stats.Duplicate = dup.Load()
	stats.Rejected = rejected.Load()
	stats.Failed = failed.Load()
	return accepted, err
}

// awaitConvergence polls every list until all match expected or ctx ends.
func awaitConvergence(ctx context.Context, client *Client, expected *leaderboard.Store, stats *Stats) error {
	var lastErr error
	for {
		lastErr = verifyAll(ctx, client, expected, stats)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrMismatch) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(pollInterval):
		}
	}
}

func verifyAll(ctx context.Context, client *Client, expected *leaderboard.Store, stats *Stats) error {
	stats.ListsValid = 0
	for list := 0; list < expected.ListCount(); list++ {
		want := expected.Entries(list)
		got, err := client.All(ctx, list, expected.Capacity())
		if err != nil {
			return err
		}
		if err := Compare(want, got); err != nil {
			return fmt.Errorf("list %d: %w", list, err)
		}
		stats.ListsValid++
	}
	return nil
}
