package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/service"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
)

// countingPruneStore wraps the memory store and counts prune calls.
type countingPruneStore struct {
	*memory.AccessLogStore
	calls atomic.Int32
	err   error
}

func (s *countingPruneStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.calls.Add(1)
	if s.err != nil {
		return 0, s.err
	}
	return s.AccessLogStore.PruneOlderThan(ctx, cutoff)
}

// seedAges appends one granted row per age in days before fixedNow; the
// entity id is the age so survivors are easy to identify.
func seedAges(t *testing.T, ls store.AccessLogStore, ages ...int) {
	t.Helper()
	for _, age := range ages {
		if _, err := ls.AppendLog(context.Background(), store.AccessLogRecord{
			EntityType: types.EntityStudent,
			EntityID:   age,
			Status:     types.StatusGranted,
			CreatedAt:  fixedNow.AddDate(0, 0, -age),
		}); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}
}

func newTestPruner(ls service.LogPruneStore, days int) *service.LogPruner {
	return service.NewLogPruner(ls, service.PrunerConfig{
		RetentionDays: days,
		IntervalHours: 1,
		Now:           func() time.Time { return fixedNow },
	}, zerolog.Nop())
}

func TestLogPruner_PruneNowRemovesRowsPastRetention(t *testing.T) {
	ms := &countingPruneStore{AccessLogStore: memory.NewAccessLogStore()}
	seedAges(t, ms, 40, 31, 29, 1)
	before := testutil.ToFloat64(service.PrunedRowsTotal)

	p := newTestPruner(ms, 30)
	if want := fixedNow.AddDate(0, 0, -30); !p.Cutoff().Equal(want) {
		t.Errorf("Cutoff = %v, want %v", p.Cutoff(), want)
	}

	n, err := p.PruneNow(context.Background())
	if err != nil {
		t.Fatalf("PruneNow: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows pruned, got %d", n)
	}
	if got := testutil.ToFloat64(service.PrunedRowsTotal) - before; got != 2 {
		t.Errorf("expected pruned_rows_total to grow by 2, grew by %v", got)
	}

	survivors := ms.Events()
	if len(survivors) != 2 {
		t.Fatalf("expected 2 surviving rows, got %d", len(survivors))
	}
	for _, ev := range survivors {
		if ev.EntityID > 30 {
			t.Errorf("row aged %d days survived", ev.EntityID)
		}
	}
}

func TestLogPruner_PruneNowPropagatesStoreError(t *testing.T) {
	ms := &countingPruneStore{AccessLogStore: memory.NewAccessLogStore(), err: errors.New("locked")}

	if _, err := newTestPruner(ms, 30).PruneNow(context.Background()); err == nil {
		t.Fatal("expected store error")
	}
}

func TestLogPruner_DisabledWhenRetentionZero(t *testing.T) {
	ms := &countingPruneStore{AccessLogStore: memory.NewAccessLogStore()}
	seedAges(t, ms, 400)
	p := newTestPruner(ms, 0)

	if p.Enabled() {
		t.Error("expected pruner disabled")
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n, _ := p.PruneNow(context.Background()); n != 0 {
		t.Errorf("expected nothing pruned, got %d", n)
	}
	if ms.calls.Load() != 0 {
		t.Errorf("expected no store calls when disabled, got %d", ms.calls.Load())
	}
}

func TestLogPruner_RunPrunesImmediatelyAndStopsWithContext(t *testing.T) {
	ms := &countingPruneStore{AccessLogStore: memory.NewAccessLogStore()}
	seedAges(t, ms, 40, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newTestPruner(ms, 30).Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for ms.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if events := ms.Events(); len(events) != 1 || events[0].EntityID != 1 {
		t.Errorf("expected only the recent row to survive, got %+v", events)
	}
}
