package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// AuthEventsMeasurement is the measurement auth events are written to.
const AuthEventsMeasurement = "auth_events"

// WriteAuthEvent records one authentication event.
//
// The action is a tag so dashboards can group by it; the principal and
// origin are fields because their cardinality is unbounded. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteAuthEvent("login_failed", "", "203.0.113.7", time.Now())
func (c *Client) WriteAuthEvent(action, principalID, originIP string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(authEventPoint(action, principalID, originIP, at))
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}

func authEventPoint(action, principalID, originIP string, at time.Time) *write.Point {
	fields := map[string]any{"count": 1}
	if principalID != "" {
		fields["principal_id"] = principalID
	}
	if originIP != "" {
		fields["origin_ip"] = originIP
	}
	return write.NewPoint(AuthEventsMeasurement, map[string]string{"action": action}, fields, at)
}
