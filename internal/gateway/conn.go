package gateway

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/castbridge/castbridge/internal/bridge"
	"github.com/castbridge/castbridge/internal/datastore"
	"github.com/castbridge/castbridge/internal/forward"
	"github.com/castbridge/castbridge/internal/metrics"
	"github.com/castbridge/castbridge/internal/protocol"
	"github.com/castbridge/castbridge/internal/ratelimit"
	"github.com/castbridge/castbridge/internal/streamid"
)

const wsWriteWait = 1 * time.Second

// conn is one signaling connection. Writes come from two directions: replies
// on the read loop and asynchronous events from forwarder goroutines. writeMu
// serializes them, and closed is checked under the same lock so nothing is
// written to a connection after teardown began.
type conn struct {
	g   *Gateway
	id  string
	ws  *websocket.Conn
	log *slog.Logger

	writeMu sync.Mutex
	closed  bool

	closeOnce sync.Once

	limiter  *ratelimit.TokenBucket
	registry *bridge.Registry
}

func (c *conn) run() {
	defer c.close()

	cfg := c.g.cfg
	c.ws.SetReadLimit(cfg.MaxSignalingMessageBytes)
	c.resetIdleDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.resetIdleDeadline()
		return nil
	})

	if cfg.WSPingInterval > 0 {
		done := make(chan struct{})
		defer close(done)
		go c.pingLoop(done, cfg.WSPingInterval)
	}

	for {
		msgType, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read failed", "err", err)
			}
			return
		}
		c.resetIdleDeadline()

		if msgType != websocket.TextMessage {
			c.log.Debug("dropping non-text message", "type", msgType)
			continue
		}

		if !c.limiter.Allow(1) {
			c.g.metrics.Inc(metrics.MessageRateLimited)
			c.log.Warn("signaling rate limit exceeded")
			c.writeClose(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		c.handleMessage(raw)
	}
}

func (c *conn) resetIdleDeadline() {
	if c.g.cfg.WSIdleTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.g.cfg.WSIdleTimeout))
	}
}

func (c *conn) pingLoop(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (c *conn) handleMessage(raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		c.g.metrics.Inc(metrics.MessageMalformed)
		c.log.Debug("dropping malformed message", "err", err)
		return
	}

	// Liveness probes are answered before any stream checks; a ping carries
	// no streamId and must always get a pong.
	if env.Command == protocol.CommandPing {
		c.send(protocol.Pong())
		return
	}

	switch env.Command {
	case protocol.CommandPublish, protocol.CommandTakeConfiguration,
		protocol.CommandTakeCandidate, protocol.CommandStop:
	default:
		c.g.metrics.Inc(metrics.MessageMalformed)
		c.log.Debug("dropping unknown command", "command", env.Command)
		return
	}

	if env.StreamID == "" {
		c.sendError(protocol.DefinitionNoStreamIDSpecified, "")
		return
	}
	if !streamid.IsValid(env.StreamID) {
		c.sendError(protocol.DefinitionInvalidStreamName, env.StreamID)
		return
	}
	if err := env.ValidateFields(); err != nil {
		c.g.metrics.Inc(metrics.MessageMalformed)
		c.log.Debug("dropping message with invalid fields", "command", env.Command, "err", err)
		return
	}

	switch env.Command {
	case protocol.CommandPublish:
		c.handlePublish(env)
	case protocol.CommandTakeConfiguration:
		c.handleTakeConfiguration(env)
	case protocol.CommandTakeCandidate:
		c.handleTakeCandidate(env)
	case protocol.CommandStop:
		c.handleStop(env)
	}
}

func (c *conn) handlePublish(env protocol.Envelope) {
	cfg := c.g.cfg
	streamID := env.StreamID

	if prior := c.registry.Get(); prior != nil {
		c.g.metrics.Inc(metrics.PublishReplaced)
		c.log.Info("replacing active publish session",
			"prior_stream", prior.StreamID(), "stream", streamID)
		prior.Stop()
	}

	settings := forward.Settings{
		OutputTarget:         cfg.OutputTarget(streamID),
		StunServerURI:        cfg.StunServerURI,
		TCPCandidatesEnabled: cfg.TCPCandidatesEnabled,
	}
	if cfg.PortRange != nil {
		settings.PortRangeMin = cfg.PortRange.Min
		settings.PortRangeMax = cfg.PortRange.Max
	}

	// announced gates the publishFinished notification: a session whose
	// start failed was never announced to the client, so its teardown must
	// stay silent.
	var announced atomic.Bool
	var sess *bridge.Session
	sess = bridge.New(streamID, c.g.factory, settings, bridge.Hooks{
		OnLocalDescription: func(sdpType, sdp string) {
			c.send(protocol.SDPConfiguration(sdp, sdpType, streamID))
		},
		OnLocalCandidate: func(mid string, lineIndex uint16, sdp string) {
			c.send(protocol.TakeCandidate(int64(lineIndex), mid, sdp, streamID))
		},
		OnActive: func() {
			c.send(protocol.Notification(protocol.DefinitionPublishStarted, streamID, ""))
			if err := c.g.store.UpdateStatus(streamID, datastore.StatusBroadcasting); err != nil {
				c.log.Error("failed to mark broadcast live", "stream", streamID, "err", err)
			}
		},
		OnFinished: func() {
			c.registry.Remove(sess)
			if !announced.Load() {
				return
			}
			c.g.metrics.Inc(metrics.SessionStopped)
			c.send(protocol.Notification(protocol.DefinitionPublishFinished, streamID, ""))
			if err := c.g.store.UpdateStatus(streamID, datastore.StatusFinished); err != nil {
				c.log.Error("failed to mark broadcast finished", "stream", streamID, "err", err)
			}
		},
	})

	if err := sess.Start(); err != nil {
		c.g.metrics.Inc(metrics.PublishStartFailed)
		c.log.Error("failed to start publish session", "stream", streamID, "err", err)
		return
	}
	announced.Store(true)

	c.registry.Put(sess)
	if err := c.g.store.Save(datastore.Broadcast{
		StreamID:  streamID,
		Status:    datastore.StatusCreated,
		StartedAt: time.Now(),
	}); err != nil {
		c.log.Error("failed to save broadcast", "stream", streamID, "err", err)
	}

	c.g.metrics.Inc(metrics.PublishAccepted)
	c.log.Info("publish accepted", "stream", streamID)
	c.send(protocol.Start(streamID))
}

func (c *conn) handleTakeConfiguration(env protocol.Envelope) {
	sess := c.sessionFor(env.StreamID)
	if sess == nil {
		return
	}

	err := sess.SetRemoteDescription(env.SDPType, env.SDP)
	switch {
	case err == nil:
		c.g.metrics.Inc(metrics.RemoteDescriptionOK)
	case errors.Is(err, forward.ErrRemoteDescription):
		c.log.Warn("failed to set remote description", "stream", env.StreamID, "err", err)
		c.sendError(protocol.DefinitionNotSetRemoteDescription, env.StreamID)
	case errors.Is(err, forward.ErrLocalDescription):
		c.log.Warn("failed to set local description", "stream", env.StreamID, "err", err)
		c.sendError(protocol.DefinitionNotSetLocalDescription, env.StreamID)
	case errors.Is(err, forward.ErrStopped):
		c.dropForSession(env)
	default:
		c.log.Warn("failed to apply remote description", "stream", env.StreamID, "err", err)
		c.sendError(protocol.DefinitionNotSetRemoteDescription, env.StreamID)
	}
}

func (c *conn) handleTakeCandidate(env protocol.Envelope) {
	sess := c.sessionFor(env.StreamID)
	if sess == nil {
		return
	}

	// ValidateFields bounds the label to a uint16.
	lineIndex := uint16(*env.CandidateLabel)
	if err := sess.AddCandidate(env.CandidateID, lineIndex, env.CandidateSDP); err != nil {
		// Candidate failures are not fatal to the session; the remaining
		// candidates may still complete connectivity.
		c.log.Warn("failed to add remote candidate", "stream", env.StreamID, "err", err)
	}
}

func (c *conn) handleStop(env protocol.Envelope) {
	sess := c.sessionFor(env.StreamID)
	if sess == nil {
		return
	}
	c.log.Info("stop requested", "stream", env.StreamID)
	sess.Stop()
}

// sessionFor returns the connection's session when it matches the message's
// stream, or nil after recording the drop. Messages for unknown streams get
// no response; the client is on its own clock and may race a teardown.
func (c *conn) sessionFor(streamID string) *bridge.Session {
	sess := c.registry.Get()
	if sess == nil || sess.StreamID() != streamID {
		c.g.metrics.Inc(metrics.MessageDropped)
		c.log.Warn("dropping message for unknown stream", "stream", streamID)
		return nil
	}
	return sess
}

func (c *conn) dropForSession(env protocol.Envelope) {
	c.g.metrics.Inc(metrics.MessageDropped)
	c.log.Warn("dropping message for stopped session", "command", env.Command, "stream", env.StreamID)
}

func (c *conn) send(msg protocol.Message) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, msg.Encode()); err != nil {
		c.log.Debug("write failed", "command", msg.Command, "err", err)
	}
}

func (c *conn) sendError(definition, streamID string) {
	c.g.metrics.Inc(metrics.ErrorResponsesSent)
	c.send(protocol.ErrorMessage(definition, streamID))
}

func (c *conn) writeClose(code int, reason string) {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

// close tears the connection down exactly once: mark it unwritable, stop the
// session (its publishFinished cannot reach a closed connection), then close
// the socket.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		c.writeMu.Unlock()

		if sess := c.registry.Clear(); sess != nil {
			sess.Stop()
		}

		_ = c.ws.Close()
		c.g.untrack(c)
		c.g.metrics.Inc(metrics.ConnectionsClosed)
		c.log.Info("signaling connection closed")
	})
}
