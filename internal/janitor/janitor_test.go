package janitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bryan-buckman/buildlog/internal/database"
	"github.com/bryan-buckman/buildlog/internal/model"
	"github.com/bryan-buckman/buildlog/internal/ratelimit"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func mustNew(t *testing.T, store Store, sweeper Sweeper, cfg Config) *Janitor {
	t.Helper()
	j, err := New(store, sweeper, cfg, discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return j
}

func TestRunOnceReapsExpiredState(t *testing.T) {
	ctx := context.Background()
	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2026, 4, 20, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	if _, _, err := db.IncrementCounter(ctx, "claim:1.2.3.4", 5, time.Minute, past); err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}
	if _, _, err := db.IncrementCounter(ctx, "claim:5.6.7.8", 5, time.Hour, now); err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}
	if err := db.PutRecoveryCode(ctx, model.RecoveryCode{
		Email: "a@example.com", CodeHash: "x", Slug: "alice", ExpiresAt: past,
	}); err != nil {
		t.Fatalf("PutRecoveryCode: %v", err)
	}

	j := mustNew(t, db, nil, Config{Interval: time.Minute})
	j.now = func() time.Time { return now }
	rep, err := j.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	want := Report{Counters: 1, RecoveryCodes: 1}
	if diff := cmp.Diff(want, rep); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	// The fresh window survives.
	count, _, err := db.IncrementCounter(ctx, "claim:5.6.7.8", 5, time.Hour, now)
	if err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}
	if count != 2 {
		t.Errorf("surviving counter = %d, want 2", count)
	}
}

func TestRunOnceSweepsMemory(t *testing.T) {
	mem := ratelimit.NewMemory()
	ctx := context.Background()
	if _, err := mem.Allow(ctx, "k", ratelimit.Rule{Name: "check", Limit: 1, Window: time.Millisecond}); err != nil {
		t.Fatalf("Allow: %v", err)
	}

	j := mustNew(t, &fakeStore{}, mem, Config{})
	j.now = func() time.Time { return time.Now().Add(time.Minute) }
	rep, err := j.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rep.MemoryWindows != 1 || mem.Len() != 0 {
		t.Errorf("MemoryWindows = %d, Len = %d", rep.MemoryWindows, mem.Len())
	}
	if j.interval != DefaultInterval {
		t.Errorf("interval = %v, want default", j.interval)
	}
}

type fakeStore struct {
	counterErr error
	calls      atomic.Int32
}

func (f *fakeStore) DeleteExpiredCounters(context.Context, time.Time) (int64, error) {
	f.calls.Add(1)
	return 0, f.counterErr
}

func (f *fakeStore) DeleteExpiredRecoveryCodes(context.Context, time.Time) (int64, error) {
	f.calls.Add(1)
	return 3, nil
}

func TestRunOnceContinuesAfterError(t *testing.T) {
	store := &fakeStore{counterErr: errors.New("db locked")}
	j := mustNew(t, store, nil, Config{Interval: time.Minute})

	rep, err := j.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if rep.RecoveryCodes != 3 {
		t.Errorf("RecoveryCodes = %d, want 3", rep.RecoveryCodes)
	}
	if got := store.calls.Load(); got != 2 {
		t.Errorf("store calls = %d, want 2", got)
	}
}

func TestStartStop(t *testing.T) {
	store := &fakeStore{}
	j := mustNew(t, store, nil, Config{Interval: 10 * time.Millisecond})
	j.Start()

	deadline := time.Now().Add(time.Second)
	for store.calls.Load() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	j.Stop()

	if got := store.calls.Load(); got < 4 {
		t.Errorf("store calls = %d, want at least two passes", got)
	}
}

func TestCronSchedule(t *testing.T) {
	if _, err := New(&fakeStore{}, nil, Config{Cron: "not a cron"}, discard()); err == nil {
		t.Fatal("expected invalid cron to be rejected")
	}

	j := mustNew(t, &fakeStore{}, nil, Config{Cron: "*/15 * * * *", Interval: time.Hour})
	j.now = func() time.Time { return time.Date(2026, 4, 20, 12, 5, 0, 0, time.UTC) }
	if got := j.wait(); got != 10*time.Minute {
		t.Errorf("wait = %v, want 10m", got)
	}

	j = mustNew(t, &fakeStore{}, nil, Config{Interval: time.Hour})
	if got := j.wait(); got != time.Hour {
		t.Errorf("wait = %v, want interval", got)
	}
}
