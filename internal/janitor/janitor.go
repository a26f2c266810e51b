// Package janitor periodically removes expired rate-limit counters and
// recovery codes.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// DefaultInterval is used when neither an interval nor a cron expression
// is configured.
const DefaultInterval = 5 * time.Minute

// Config schedules the sweep. Cron, when set, wins over Interval.
type Config struct {
	Interval time.Duration `yaml:"interval"`
	Cron     string        `yaml:"cron"`
}

// Store is the persisted state the janitor reaps.
type Store interface {
	DeleteExpiredCounters(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredRecoveryCodes(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper is an in-process counter map, such as ratelimit.Memory.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Report counts what one pass removed.
type Report struct {
	Counters      int64
	RecoveryCodes int64
	MemoryWindows int
}

// Janitor runs the sweep loop.
type Janitor struct {
	store    Store
	sweeper  Sweeper
	interval time.Duration
	cron     string
	logger   *slog.Logger
	now      func() time.Time
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a janitor. sweeper may be nil when counters live only in
// the store.
func New(store Store, sweeper Sweeper, cfg Config, logger *slog.Logger) (*Janitor, error) {
	if cfg.Cron != "" && !gronx.IsValid(cfg.Cron) {
		return nil, fmt.Errorf("invalid janitor cron expression %q", cfg.Cron)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Janitor{
		store:    store,
		sweeper:  sweeper,
		interval: cfg.Interval,
		cron:     cfg.Cron,
		logger:   logger,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}, nil
}

// wait returns how long to sleep before the next pass.
func (j *Janitor) wait() time.Duration {
	if j.cron == "" {
		return j.interval
	}
	now := j.now().UTC()
	next, err := gronx.NextTickAfter(j.cron, now, false)
	if err != nil {
		j.logger.Error("janitor next tick", "cron", j.cron, "error", err)
		return j.interval
	}
	return next.Sub(now)
}

// RunOnce performs a single pass. Errors from one step do not skip the
// others; the first error is returned.
func (j *Janitor) RunOnce(ctx context.Context) (Report, error) {
	var (
		rep      Report
		firstErr error
	)
	now := j.now()

	if j.sweeper != nil {
		rep.MemoryWindows = j.sweeper.Sweep(now)
	}

	n, err := j.store.DeleteExpiredCounters(ctx, now)
	if err != nil {
		firstErr = err
	}
	rep.Counters = n

	n, err = j.store.DeleteExpiredRecoveryCodes(ctx, now)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	rep.RecoveryCodes = n

	return rep, firstErr
}

// Start begins the sweep loop.
func (j *Janitor) Start() {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		for {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			rep, err := j.RunOnce(ctx)
			cancel()

			if err != nil {
				j.logger.Error("janitor pass failed", "error", err)
			} else if rep.Counters+rep.RecoveryCodes > 0 || rep.MemoryWindows > 0 {
				j.logger.Debug("janitor pass",
					"counters", rep.Counters,
					"recovery_codes", rep.RecoveryCodes,
					"memory_windows", rep.MemoryWindows,
				)
			}

			select {
			case <-j.stopChan:
				return
			case <-time.After(j.wait()):
			}
		}
	}()
}

// Stop stops the loop and waits for the current pass to finish.
func (j *Janitor) Stop() {
	close(j.stopChan)
	j.wg.Wait()
}
