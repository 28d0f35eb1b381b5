package forward

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

// APIBuilder builds the pion API a forwarder uses; tests swap it for one
// backed by a virtual network.
type APIBuilder func(Settings) (*webrtc.API, error)

// NewAPI constructs a pion API with the SettingEngine restrictions derived
// from the session settings: the ephemeral UDP port range and, when enabled,
// TCP candidate gathering. Called once per session; the SettingEngine is
// cheap and per-session construction keeps every Settings field honored.
func NewAPI(s Settings, loggerFactory logging.LoggerFactory) (*webrtc.API, error) {
	se := webrtc.SettingEngine{}
	if loggerFactory != nil {
		se.LoggerFactory = loggerFactory
	}

	if s.PortRangeMin != 0 || s.PortRangeMax != 0 {
		if s.PortRangeMin > s.PortRangeMax {
			return nil, fmt.Errorf("invalid port range %d-%d", s.PortRangeMin, s.PortRangeMax)
		}
		if err := se.SetEphemeralUDPPortRange(s.PortRangeMin, s.PortRangeMax); err != nil {
			return nil, fmt.Errorf("set ephemeral udp port range: %w", err)
		}
	}

	if s.TCPCandidatesEnabled {
		se.SetNetworkTypes([]webrtc.NetworkType{
			webrtc.NetworkTypeUDP4,
			webrtc.NetworkTypeUDP6,
			webrtc.NetworkTypeTCP4,
			webrtc.NetworkTypeTCP6,
		})
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
	), nil
}

type factoryConfig struct {
	log         *slog.Logger
	apiBuilder  APIBuilder
	sinkFactory SinkFactory
}

type Option func(*factoryConfig)

// WithAPIBuilder overrides how the pion API is constructed (tests use a vnet
// backed builder).
func WithAPIBuilder(b APIBuilder) Option {
	return func(fc *factoryConfig) { fc.apiBuilder = b }
}

// WithSinkFactory overrides the ingest sink used for forwarded media.
func WithSinkFactory(f SinkFactory) Option {
	return func(fc *factoryConfig) { fc.sinkFactory = f }
}

// NewPionFactory returns a Factory producing pion-backed forwarders.
func NewPionFactory(log *slog.Logger, opts ...Option) Factory {
	fc := factoryConfig{
		log: log,
		apiBuilder: func(s Settings) (*webrtc.API, error) {
			return NewAPI(s, NewLoggerFactory(log))
		},
		sinkFactory: func() Sink { return NewLogSink(log) },
	}
	for _, opt := range opts {
		opt(&fc)
	}

	return func(events Events) Forwarder {
		return &pionForwarder{
			log:        fc.log,
			events:     events,
			apiBuilder: fc.apiBuilder,
			sink:       fc.sinkFactory(),
		}
	}
}

// pionForwarder terminates the publisher's PeerConnection server-side and
// relays received media into the ingest sink.
type pionForwarder struct {
	log        *slog.Logger
	events     Events
	apiBuilder APIBuilder
	sink       Sink

	mu        sync.Mutex
	settings  Settings
	pc        *webrtc.PeerConnection
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	started   bool
	stopped   bool

	stopOnce sync.Once
}

func (f *pionForwarder) Configure(s Settings) {
	f.mu.Lock()
	f.settings = s
	f.mu.Unlock()
}

func (f *pionForwarder) Start() error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return ErrStopped
	}
	if f.started {
		f.mu.Unlock()
		return nil
	}
	settings := f.settings
	f.mu.Unlock()

	api, err := f.apiBuilder(settings)
	if err != nil {
		return fmt.Errorf("build webrtc api: %w", err)
	}

	var iceServers []webrtc.ICEServer
	if settings.StunServerURI != "" {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{settings.StunServerURI}})
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}

	if err := f.sink.Open(settings.OutputTarget); err != nil {
		_ = pc.Close()
		return fmt.Errorf("open ingest sink: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		var mid string
		if init.SDPMid != nil {
			mid = *init.SDPMid
		}
		var lineIndex uint16
		if init.SDPMLineIndex != nil {
			lineIndex = *init.SDPMLineIndex
		}
		f.events.emitLocalCandidate(mid, lineIndex, init.Candidate)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go f.consumeTrack(track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			f.events.emitConnected()
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			f.Stop()
		}
	})

	f.mu.Lock()
	f.pc = pc
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *pionForwarder) SetRemoteDescription(sdpType, sdp string) error {
	f.mu.Lock()
	pc := f.pc
	if f.stopped || pc == nil {
		f.mu.Unlock()
		return ErrStopped
	}
	f.mu.Unlock()

	// Anything that isn't literally "offer" is treated as an answer; the
	// protocol has no third description type.
	descType := webrtc.SDPTypeAnswer
	if sdpType == "offer" {
		descType = webrtc.SDPTypeOffer
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: descType, SDP: sdp}); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteDescription, err)
	}

	f.mu.Lock()
	f.remoteSet = true
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, init := range pending {
		if err := pc.AddICECandidate(init); err != nil {
			f.log.Warn("queued candidate rejected", "err", err)
		}
	}

	if descType != webrtc.SDPTypeOffer {
		return nil
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLocalDescription, err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("%w: %v", ErrLocalDescription, err)
	}
	local := pc.LocalDescription()
	if local == nil {
		return fmt.Errorf("%w: missing local description", ErrLocalDescription)
	}

	// Candidates trickle separately via OnICECandidate; the answer is emitted
	// as soon as it exists rather than waiting for gathering to complete.
	f.events.emitLocalDescription(local.Type.String(), local.SDP)
	return nil
}

func (f *pionForwarder) AddCandidate(mid string, lineIndex uint16, sdp string) error {
	init := webrtc.ICECandidateInit{
		Candidate:     sdp,
		SDPMid:        &mid,
		SDPMLineIndex: &lineIndex,
	}

	f.mu.Lock()
	pc := f.pc
	if f.stopped || pc == nil {
		f.mu.Unlock()
		return ErrStopped
	}
	if !f.remoteSet {
		// Candidates may legitimately arrive before the remote description;
		// hold them until the transport can accept them.
		f.pending = append(f.pending, init)
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	return pc.AddICECandidate(init)
}

func (f *pionForwarder) Stop() {
	f.stopOnce.Do(func() {
		f.mu.Lock()
		f.stopped = true
		pc := f.pc
		f.pc = nil
		f.pending = nil
		f.mu.Unlock()

		if pc != nil {
			_ = pc.Close()
		}
		if err := f.sink.Close(); err != nil {
			f.log.Warn("ingest sink close failed", "err", err)
		}
		f.events.emitStopped()
	})
}

func (f *pionForwarder) consumeTrack(track *webrtc.TrackRemote) {
	kind := track.Kind().String()
	f.log.Debug("remote track started", "kind", kind, "codec", track.Codec().MimeType)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if err := f.sink.WriteRTP(kind, pkt); err != nil {
			f.log.Warn("ingest sink write failed", "kind", kind, "err", err)
			return
		}
	}
}
