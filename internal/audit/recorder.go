package audit

import (
	"context"
	"time"

	"github.com/kifel/authcore/internal/infrastructure/logging"
)

// queueSize is the buffer size for the async event channel. Events beyond
// this are dropped so request handlers never wait on the store.
const queueSize = 256

// Sink receives every recorded event after it is stored.
type Sink interface {
	Observe(e Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(e Event)

// Observe calls f(e).
func (f SinkFunc) Observe(e Event) { f(e) }

// Recorder writes events asynchronously and serially, which suits SQLite's
// single-writer model, then fans them out to sinks.
type Recorder struct {
	repo   Repository
	logger *logging.Logger
	sinks  []Sink
	queue  chan *Event
	now    func() time.Time
}

// NewRecorder creates a Recorder. Call Run to start writing.
func NewRecorder(repo Repository, logger *logging.Logger, sinks ...Sink) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger,
		sinks:  sinks,
		queue:  make(chan *Event, queueSize),
		now:    time.Now,
	}
}

// Record enqueues an event. It never blocks; when the queue is full the
// event is dropped and a warning logged. A nil Recorder ignores events.
func (r *Recorder) Record(e Event) {
	if r == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	if e.Source == "" {
		e.Source = "api"
	}

	select {
	case r.queue <- &e:
	default:
		r.logger.Warn("audit queue full, dropping event", "action", e.Action)
	}
}

// Run writes queued events until ctx is cancelled, then drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case e := <-r.queue:
			r.write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-r.queue:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e *Event) {
	// Detached from the request; the event outlives it.
	if err := r.repo.Create(context.Background(), e); err != nil {
		r.logger.Error("audit log write failed", "action", e.Action, "error", err)
	}
	for _, s := range r.sinks {
		s.Observe(*e)
	}
}
