// Package gateway implements the WebSocket signaling endpoint. Each
// connection speaks a flat-JSON command protocol (publish, takeConfiguration,
// takeCandidate, stop, ping) and owns at most one publish session at a time.
package gateway

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/castbridge/castbridge/internal/bridge"
	"github.com/castbridge/castbridge/internal/config"
	"github.com/castbridge/castbridge/internal/datastore"
	"github.com/castbridge/castbridge/internal/forward"
	"github.com/castbridge/castbridge/internal/metrics"
	"github.com/castbridge/castbridge/internal/origin"
	"github.com/castbridge/castbridge/internal/ratelimit"
)

// Gateway upgrades signaling connections and tracks them for shutdown.
type Gateway struct {
	cfg      config.Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	store    datastore.Store
	factory  forward.Factory
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
}

func New(cfg config.Config, log *slog.Logger, m *metrics.Metrics, store datastore.Store, factory forward.Factory) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		log:     log,
		metrics: m,
		store:   store,
		factory: factory,
		conns:   make(map[*conn]struct{}),
	}
	g.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if origin.IsAllowed(r.Header.Get("Origin"), r.Host, cfg.AllowedOrigins) {
				return true
			}
			m.Inc(metrics.OriginRejected)
			log.Warn("rejected websocket origin", "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
			return false
		},
	}
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	c := &conn{
		g:        g,
		id:       uuid.NewString(),
		ws:       ws,
		registry: bridge.NewRegistry(),
		limiter: ratelimit.NewTokenBucket(nil,
			int64(g.cfg.MaxSignalingMessagesPerSecond),
			int64(g.cfg.MaxSignalingMessagesPerSecond)),
	}
	c.log = g.log.With("conn", c.id, "remote", r.RemoteAddr)

	if !g.track(c) {
		// Shutting down; refuse new sessions.
		_ = ws.Close()
		return
	}

	g.metrics.Inc(metrics.ConnectionsOpened)
	c.log.Info("signaling connection opened")
	c.run()
}

func (g *Gateway) track(c *conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.conns[c] = struct{}{}
	return true
}

func (g *Gateway) untrack(c *conn) {
	g.mu.Lock()
	delete(g.conns, c)
	g.mu.Unlock()
}

// Close tears down every live connection. Called once during shutdown, after
// the HTTP listener has stopped accepting upgrades.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	conns := make([]*conn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}
