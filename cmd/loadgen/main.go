package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/hiscore/internal/loadgen"
	"github.com/okian/hiscore/pkg/logger"
)

// Default configuration constants.
const (
	defaultSubmissions = 10_000
	defaultIdentities  = 2_000
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 10 * time.Second
	defaultWait        = time.Minute
	defaultDupEvery    = 20
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of an empty hiscore service")
		submissions = flag.Int("submissions", defaultSubmissions, "Number of scores to submit")
		identities  = flag.Int("identities", defaultIdentities, "Distinct identities to spread scores over")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent senders")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		wait        = flag.Duration("wait", defaultWait, "How long to wait for the service to converge")
		seed        = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Generator seed")
		dupEvery    = flag.Int("dup-every", defaultDupEvery, "Resend an earlier submission every N (0 disables)")
		format      = flag.String("log-format", "text", "Log format: json or text")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*format)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, err := loadgen.Run(ctx, loadgen.Config{
		BaseURL:     *baseURL,
		Submissions: *submissions,
		Identities:  *identities,
		Workers:     *workers,
		Timeout:     *timeout,
		WaitTimeout: *wait,
		Seed:        *seed,
		DupEvery:    *dupEvery,
	})
	if err != nil {
		logger.Get().Error(ctx, "load run failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}
