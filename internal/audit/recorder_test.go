package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kifel/authcore/internal/infrastructure/logging"
)

type memoryRepo struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *memoryRepo) Create(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, *e)
	return nil
}

func (m *memoryRepo) List(context.Context, Filter) (*ListResult, error) {
	return nil, errors.New("not implemented")
}

func (m *memoryRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestRecorder_WritesAndFansOut(t *testing.T) {
	repo := &memoryRepo{}
	var mu sync.Mutex
	var seen []string
	sink := SinkFunc(func(e Event) {
		mu.Lock()
		seen = append(seen, e.Action)
		mu.Unlock()
	})

	rec := NewRecorder(repo, logging.Discard(), sink)
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	rec.Record(Event{Action: ActionLogin, PrincipalID: "prn-1"})
	rec.Record(Event{Action: ActionLogout, PrincipalID: "prn-1", Source: "ws"})

	deadline := time.Now().Add(2 * time.Second)
	for repo.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("recorded %d events, want 2", repo.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if repo.events[0].Source != "api" || repo.events[1].Source != "ws" {
		t.Errorf("sources = %q,%q, want api,ws", repo.events[0].Source, repo.events[1].Source)
	}
	if !repo.events[0].CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", repo.events[0].CreatedAt, fixed)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != ActionLogin || seen[1] != ActionLogout {
		t.Errorf("sink saw %v", seen)
	}
}

func TestRecorder_DrainsOnShutdown(t *testing.T) {
	repo := &memoryRepo{}
	rec := NewRecorder(repo, logging.Discard())

	for range 10 {
		rec.Record(Event{Action: ActionRefresh})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Run(ctx)

	if n := repo.count(); n != 10 {
		t.Errorf("drained %d events, want 10", n)
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	repo := &memoryRepo{}
	rec := NewRecorder(repo, logging.Discard())

	for range queueSize + 10 {
		rec.Record(Event{Action: ActionLogin})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Run(ctx)

	if n := repo.count(); n != queueSize {
		t.Errorf("stored %d events, want %d", n, queueSize)
	}
}

func TestRecorder_StoreErrorStillNotifiesSinks(t *testing.T) {
	repo := &memoryRepo{err: errors.New("database is locked")}
	var calls int
	rec := NewRecorder(repo, logging.Discard(), SinkFunc(func(Event) { calls++ }))

	rec.Record(Event{Action: ActionLogin})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Run(ctx)

	if calls != 1 {
		t.Errorf("sink calls = %d, want 1", calls)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var rec *Recorder
	rec.Record(Event{Action: ActionLogin})
}
