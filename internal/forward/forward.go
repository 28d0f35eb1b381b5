// Package forward contains the media-forwarding delegate: the component that
// terminates a publisher's negotiated media session and pushes it toward the
// downstream ingest pipeline.
//
// The signaling core only depends on the Forwarder interface; the pion-backed
// implementation lives alongside it so the concrete WebRTC stack stays
// swappable without touching the gateway or the session state machine.
package forward

import "errors"

var (
	// ErrRemoteDescription wraps failures to apply a remote session description.
	ErrRemoteDescription = errors.New("forward: set remote description")
	// ErrLocalDescription wraps failures to produce or apply the local answer.
	ErrLocalDescription = errors.New("forward: set local description")
	// ErrStopped is returned for negotiation calls after the forwarder stopped.
	ErrStopped = errors.New("forward: forwarder stopped")
)

// Settings carries the per-session connection parameters resolved from the
// process configuration at publish time.
type Settings struct {
	// OutputTarget is the ingest URL the forwarded media is pushed to.
	OutputTarget string

	// PortRangeMin/Max restrict the UDP ports used for ICE; both zero means the
	// OS picks ephemeral ports.
	PortRangeMin uint16
	PortRangeMax uint16

	StunServerURI        string
	TCPCandidatesEnabled bool
}

// Events are the callbacks a Forwarder invokes toward its owning session.
// Handlers may be invoked from the forwarder's own goroutines; nil handlers
// are skipped.
type Events struct {
	// OnLocalDescription reports the locally produced session description
	// (the answer to an incoming offer).
	OnLocalDescription func(sdpType, sdp string)

	// OnLocalCandidate reports a locally gathered connectivity candidate.
	OnLocalCandidate func(mid string, lineIndex uint16, sdp string)

	// OnConnected fires once the media path is established.
	OnConnected func()

	// OnStopped fires exactly once when the forwarder shuts down, whether via
	// Stop or a transport-level failure.
	OnStopped func()
}

func (e Events) emitLocalDescription(sdpType, sdp string) {
	if e.OnLocalDescription != nil {
		e.OnLocalDescription(sdpType, sdp)
	}
}

func (e Events) emitLocalCandidate(mid string, lineIndex uint16, sdp string) {
	if e.OnLocalCandidate != nil {
		e.OnLocalCandidate(mid, lineIndex, sdp)
	}
}

func (e Events) emitConnected() {
	if e.OnConnected != nil {
		e.OnConnected()
	}
}

func (e Events) emitStopped() {
	if e.OnStopped != nil {
		e.OnStopped()
	}
}

// Forwarder is the media-forwarding delegate owned by exactly one bridging
// session. Stop must be idempotent: it may be invoked from both an explicit
// stop command and a connection close in unspecified order.
type Forwarder interface {
	Configure(Settings)
	Start() error
	Stop()

	// SetRemoteDescription applies the peer's description. sdpType "offer" is
	// treated as an incoming offer (the forwarder answers it); any other value
	// is treated as an answer.
	SetRemoteDescription(sdpType, sdp string) error

	AddCandidate(mid string, lineIndex uint16, sdp string) error
}

// Factory builds a Forwarder bound to the given event callbacks.
type Factory func(events Events) Forwarder
