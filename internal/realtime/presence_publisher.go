package realtime

import (
	"context"
	"encoding/json"

	"github.com/kifel/authcore/internal/infrastructure/logging"
)

// Publisher publishes a retained message. *mqtt.Client satisfies it.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
}

// PresencePublisher mirrors the presence list onto a retained topic so
// other services see who is online without holding a WebSocket.
//
// BroadcastPresence never blocks the registry: it keeps only the most
// recent list, and Run publishes it when the broker is free.
type PresencePublisher struct {
	pub    Publisher
	topic  string
	logger *logging.Logger
	latest chan []Presence
}

// NewPresencePublisher creates a PresencePublisher. Call Run to start it.
func NewPresencePublisher(pub Publisher, topic string, logger *logging.Logger) *PresencePublisher {
	return &PresencePublisher{
		pub:    pub,
		topic:  topic,
		logger: logger,
		latest: make(chan []Presence, 1),
	}
}

// BroadcastPresence implements PresenceSink.
func (p *PresencePublisher) BroadcastPresence(list []Presence) {
	for {
		select {
		case p.latest <- list:
			return
		default:
		}
		// Drop the stale list so the newer one fits.
		select {
		case <-p.latest:
		default:
		}
	}
}

// Run publishes presence lists until ctx is cancelled.
func (p *PresencePublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case list := <-p.latest:
			p.publish(list)
		}
	}
}

func (p *PresencePublisher) publish(list []Presence) {
	if list == nil {
		list = []Presence{}
	}
	payload, err := json.Marshal(list)
	if err != nil {
		p.logger.Error("failed to marshal presence", "error", err)
		return
	}
	if err := p.pub.PublishRetained(p.topic, payload); err != nil {
		p.logger.Warn("publishing presence failed", "topic", p.topic, "error", err)
	}
}
