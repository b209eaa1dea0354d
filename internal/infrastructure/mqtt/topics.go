package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "authcore"

// Topics builds authcore's MQTT topic names under a common prefix.
//
//	topics := mqtt.NewTopics("authcore")
//	topics.Presence() // "authcore/presence"
type Topics struct {
	prefix string
}

// NewTopics returns a topic builder. Trailing slashes are trimmed and an
// empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic prefix.
func (t Topics) Prefix() string {
	return t.prefix
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: authcore/system/status
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}

// Presence returns the retained presence snapshot topic.
//
// Example: authcore/presence
func (t Topics) Presence() string {
	return t.prefix + "/presence"
}

// AuthEvent returns the topic for one kind of auth event.
//
// Example: authcore/events/login
func (t Topics) AuthEvent(action string) string {
	return t.prefix + "/events/" + action
}

// AllAuthEvents returns a pattern matching every auth event.
//
// Pattern: authcore/events/+
func (t Topics) AllAuthEvents() string {
	return t.prefix + "/events/+"
}
