// Package metrics is a minimal, concurrency-safe counter registry for
// signaling events, exposed in Prometheus' text format by PrometheusHandler.
package metrics

import "sync"

// Event names incremented by the gateway. Keeping them as constants makes the
// counters greppable from dashboards and tests alike.
const (
	MessageMalformed    = "message_malformed"
	MessageDropped      = "message_dropped_no_session"
	MessageRateLimited  = "message_rate_limited"
	PublishAccepted     = "publish_accepted"
	PublishReplaced     = "publish_replaced"
	PublishStartFailed  = "publish_start_failed"
	SessionStopped      = "session_stopped"
	ConnectionsOpened   = "connections_opened"
	ConnectionsClosed   = "connections_closed"
	OriginRejected      = "origin_rejected"
	ErrorResponsesSent  = "error_responses_sent"
	RemoteDescriptionOK = "remote_description_set"
)

type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters for exposition.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
