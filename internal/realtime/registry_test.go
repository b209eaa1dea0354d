package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kifel/authcore/internal/auth"
	"github.com/kifel/authcore/internal/infrastructure/logging"
)

// recordingSink captures every broadcast list.
type recordingSink struct {
	mu    sync.Mutex
	lists [][]Presence
}

func (s *recordingSink) BroadcastPresence(list []Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists = append(s.lists, list)
}

func (s *recordingSink) snapshot() [][]Presence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Presence(nil), s.lists...)
}

func startRegistry(t *testing.T, sinks ...PresenceSink) *Registry {
	t.Helper()
	r := NewRegistry(logging.Discard(), sinks...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r
}

func ids(list []Presence) []string {
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.PrincipalID
	}
	return out
}

func TestRegistry_ConnectDisconnect(t *testing.T) {
	sink := &recordingSink{}
	r := startRegistry(t, sink)
	ctx := context.Background()

	if _, err := r.Connect(ctx, auth.Identity{PrincipalID: "prn-b", Name: "bob"}); err != nil {
		t.Fatalf("Connect(bob) error = %v", err)
	}
	list, err := r.Connect(ctx, auth.Identity{PrincipalID: "prn-a", Name: "alice"})
	if err != nil {
		t.Fatalf("Connect(alice) error = %v", err)
	}
	if got := ids(list); len(got) != 2 || got[0] != "prn-a" || got[1] != "prn-b" {
		t.Errorf("Connect() list = %v, want sorted [prn-a prn-b]", got)
	}

	list, err = r.Disconnect(ctx, auth.Identity{PrincipalID: "prn-b"})
	if err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if got := ids(list); len(got) != 1 || got[0] != "prn-a" {
		t.Errorf("Disconnect() list = %v, want [prn-a]", got)
	}

	broadcasts := sink.snapshot()
	if len(broadcasts) != 3 {
		t.Fatalf("sink saw %d broadcasts, want 3", len(broadcasts))
	}
	if len(broadcasts[0]) != 1 || len(broadcasts[1]) != 2 || len(broadcasts[2]) != 1 {
		t.Errorf("broadcast sizes out of order: %v", broadcasts)
	}
}

func TestRegistry_ConnectOverwrites(t *testing.T) {
	r := startRegistry(t)
	ctx := context.Background()

	r.Connect(ctx, auth.Identity{PrincipalID: "prn-a", Name: "old"}) //nolint:errcheck // checked via snapshot
	r.Connect(ctx, auth.Identity{PrincipalID: "prn-a", Name: "new"}) //nolint:errcheck // checked via snapshot

	list, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(list) != 1 || list[0].Name != "new" {
		t.Errorf("Snapshot() = %+v, want single entry named new", list)
	}
}

func TestRegistry_DisconnectAlwaysBroadcasts(t *testing.T) {
	sink := &recordingSink{}
	r := startRegistry(t, sink)
	ctx := context.Background()
	alice := auth.Identity{PrincipalID: "prn-a", Name: "a"}

	if _, err := r.Connect(ctx, alice); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		list, err := r.Disconnect(ctx, alice)
		if err != nil {
			t.Fatalf("Disconnect() error = %v", err)
		}
		if len(list) != 0 {
			t.Errorf("Disconnect() list = %v, want empty", list)
		}
	}
	if _, err := r.Disconnect(ctx, auth.Identity{PrincipalID: "prn-ghost"}); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	broadcasts := sink.snapshot()
	if len(broadcasts) != 4 {
		t.Fatalf("sink saw %d broadcasts, want 4", len(broadcasts))
	}
	for i, b := range broadcasts[1:] {
		if len(b) != 0 {
			t.Errorf("broadcast %d = %v, want empty list", i+1, b)
		}
	}
}

func TestRegistry_ConcurrentCallersSerialise(t *testing.T) {
	sink := &recordingSink{}
	r := startRegistry(t, sink)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := auth.Identity{PrincipalID: "prn-" + string(rune('A'+i%26)) + string(rune('a'+i/26))}
			if _, err := r.Connect(ctx, id); err != nil {
				t.Errorf("Connect() error = %v", err)
			}
		}()
	}
	wg.Wait()

	list, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(list) != n {
		t.Errorf("Snapshot() = %d entries, want %d", len(list), n)
	}

	// Every broadcast grows by one: no lost or reordered updates.
	for i, b := range sink.snapshot() {
		if len(b) != i+1 {
			t.Fatalf("broadcast %d has %d entries, want %d", i, len(b), i+1)
		}
	}
}

func TestRegistry_Closed(t *testing.T) {
	r := NewRegistry(logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if _, err := r.Connect(context.Background(), auth.Identity{PrincipalID: "prn-a"}); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("Connect() after stop error = %v, want ErrRegistryClosed", err)
	}
}

func TestRegistry_NotRunningHonoursContext(t *testing.T) {
	r := NewRegistry(logging.Discard())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := r.Snapshot(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Snapshot() error = %v, want context.DeadlineExceeded", err)
	}
}
