// Package bridge ties a published stream to its media forwarder and tracks
// the session lifecycle from first offer to teardown.
package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/castbridge/castbridge/internal/forward"
)

// State is the lifecycle phase of a publish session.
type State int32

const (
	StateCreated State = iota
	StateNegotiating
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Hooks are invoked as the underlying forwarder produces signaling output or
// changes state. They may be called from forwarder goroutines; implementations
// must be safe to call concurrently with session methods.
type Hooks struct {
	OnLocalDescription func(sdpType, sdp string)
	OnLocalCandidate   func(mid string, lineIndex uint16, sdp string)
	OnActive           func()
	OnFinished         func()
}

// Session owns one publish attempt for one stream ID. All methods are safe
// for concurrent use; Stop is idempotent.
type Session struct {
	streamID string
	fwd      forward.Forwarder

	state    atomic.Int32
	stopOnce sync.Once
}

// New builds a session around a freshly created forwarder. The forwarder is
// configured but not started; call Start before relaying any descriptions.
func New(streamID string, factory forward.Factory, settings forward.Settings, hooks Hooks) *Session {
	s := &Session{streamID: streamID}
	s.fwd = factory(forward.Events{
		OnLocalDescription: hooks.OnLocalDescription,
		OnLocalCandidate:   hooks.OnLocalCandidate,
		OnConnected: func() {
			// A reconnect after teardown must not resurrect the session.
			if s.state.CompareAndSwap(int32(StateNegotiating), int32(StateActive)) {
				if hooks.OnActive != nil {
					hooks.OnActive()
				}
			}
		},
		OnStopped: func() {
			s.state.Store(int32(StateStopped))
			if hooks.OnFinished != nil {
				hooks.OnFinished()
			}
		},
	})
	s.fwd.Configure(settings)
	return s
}

func (s *Session) StreamID() string { return s.streamID }

func (s *Session) State() State { return State(s.state.Load()) }

// Start brings up the forwarder and moves the session into negotiation.
// On failure the session is torn down and must not be reused.
func (s *Session) Start() error {
	if err := s.fwd.Start(); err != nil {
		s.Stop()
		return err
	}
	s.state.CompareAndSwap(int32(StateCreated), int32(StateNegotiating))
	return nil
}

// SetRemoteDescription applies the publisher's offer or answer.
func (s *Session) SetRemoteDescription(sdpType, sdp string) error {
	if s.State() == StateStopped {
		return forward.ErrStopped
	}
	return s.fwd.SetRemoteDescription(sdpType, sdp)
}

// AddCandidate relays a remote ICE candidate to the forwarder in arrival
// order.
func (s *Session) AddCandidate(mid string, lineIndex uint16, sdp string) error {
	if s.State() == StateStopped {
		return forward.ErrStopped
	}
	return s.fwd.AddCandidate(mid, lineIndex, sdp)
}

// Stop tears the session down. Safe to call multiple times and from any
// goroutine; OnFinished fires at most once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.fwd.Stop()
	})
}
