package realtime

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/kifel/authcore/internal/auth"
	"github.com/kifel/authcore/internal/infrastructure/logging"
)

// ErrRegistryClosed is returned when the registry is not running.
var ErrRegistryClosed = errors.New("session registry closed")

// Presence is one connected principal.
type Presence struct {
	PrincipalID string    `json:"id"`
	Name        string    `json:"name"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// PresenceSink receives the full presence list after every change.
// Sinks run on the registry goroutine, so they must not block for long
// and must not call back into the Registry. The slice is shared between
// sinks and must be treated as read-only.
type PresenceSink interface {
	BroadcastPresence(list []Presence)
}

type requestKind int

const (
	requestSnapshot requestKind = iota
	requestConnect
	requestDisconnect
)

type request struct {
	kind  requestKind
	entry Presence
	reply chan []Presence
}

// Registry tracks who is connected. All state lives in the Run goroutine;
// the exported methods send it requests and wait for the reply.
type Registry struct {
	requests chan request
	done     chan struct{}
	sinks    []PresenceSink
	logger   *logging.Logger
	now      func() time.Time
}

// NewRegistry creates a Registry. Call Run to start it.
func NewRegistry(logger *logging.Logger, sinks ...PresenceSink) *Registry {
	return &Registry{
		requests: make(chan request),
		done:     make(chan struct{}),
		sinks:    sinks,
		logger:   logger,
		now:      time.Now,
	}
}

// AddSink registers another sink. It must be called before Run.
func (r *Registry) AddSink(s PresenceSink) {
	r.sinks = append(r.sinks, s)
}

// Run processes requests until ctx is cancelled. Afterwards every call
// returns ErrRegistryClosed.
func (r *Registry) Run(ctx context.Context) {
	defer close(r.done)

	sessions := make(map[string]Presence)
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("session registry stopped", "sessions", len(sessions))
			return
		case req := <-r.requests:
			changed := false
			switch req.kind {
			case requestConnect:
				sessions[req.entry.PrincipalID] = req.entry
				changed = true
			case requestDisconnect:
				delete(sessions, req.entry.PrincipalID)
				changed = true
			case requestSnapshot:
			}

			list := sortedPresence(sessions)
			if changed {
				for _, s := range r.sinks {
					s.BroadcastPresence(list)
				}
			}
			req.reply <- list
		}
	}
}

// Connect records id as present and returns the updated list.
// A principal that is already present is overwritten.
func (r *Registry) Connect(ctx context.Context, id auth.Identity) ([]Presence, error) {
	return r.call(ctx, request{kind: requestConnect, entry: Presence{
		PrincipalID: id.PrincipalID,
		Name:        id.Name,
		ConnectedAt: r.now().UTC(),
	}})
}

// Disconnect removes id's principal and returns the updated list.
func (r *Registry) Disconnect(ctx context.Context, id auth.Identity) ([]Presence, error) {
	return r.call(ctx, request{kind: requestDisconnect, entry: Presence{PrincipalID: id.PrincipalID}})
}

// Snapshot returns the current presence list.
func (r *Registry) Snapshot(ctx context.Context) ([]Presence, error) {
	return r.call(ctx, request{kind: requestSnapshot})
}

func (r *Registry) call(ctx context.Context, req request) ([]Presence, error) {
	req.reply = make(chan []Presence, 1)

	select {
	case r.requests <- req:
	case <-r.done:
		return nil, ErrRegistryClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Run always answers a request it accepted.
	select {
	case list := <-req.reply:
		return list, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func sortedPresence(sessions map[string]Presence) []Presence {
	list := make([]Presence, 0, len(sessions))
	for _, p := range sessions {
		list = append(list, p)
	}
	slices.SortFunc(list, func(a, b Presence) int {
		return strings.Compare(a.PrincipalID, b.PrincipalID)
	})
	return list
}
