package history

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// RecordStateChange writes a single entity state transition.
//
// This is the primary method for recording entity history.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - localID: The entity's local identifier (e.g., "light.kitchen")
//   - domain: The entity domain (e.g., "light")
//   - source: The entity source ("internal", "external", "hybrid")
//   - state: The new state value
//   - previous: The state before the change (empty if unknown)
//
// Example:
//
//	client.RecordStateChange("light.kitchen", "light", "external", "on", "off")
func (c *Client) RecordStateChange(localID, domain, source, state, previous string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"entity_state",
		map[string]string{
			"local_id": localID,
			"domain":   domain,
			"source":   source,
		},
		map[string]interface{}{
			"state":    state,
			"previous": previous,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordSyncRun writes the outcome counters of a full sync pass.
//
// Parameters:
//   - created, updated, deleted, conflicts, errors: run counters
//   - duration: wall-clock run time
func (c *Client) RecordSyncRun(created, updated, deleted, conflicts, errors int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sync_run",
		map[string]string{},
		map[string]interface{}{
			"created":     created,
			"updated":     updated,
			"deleted":     deleted,
			"conflicts":   conflicts,
			"errors":      errors,
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., replayed controller events).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
