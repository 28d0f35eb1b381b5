package forward

import (
	"log/slog"
	"sync/atomic"

	"github.com/pion/rtp"
)

// Sink is the boundary to the downstream ingest pipeline. Everything past it
// (encoding, muxing, transport of the media bitstream) is outside the
// signaling core; implementations receive raw RTP per track kind.
type Sink interface {
	Open(outputTarget string) error
	WriteRTP(kind string, pkt *rtp.Packet) error
	Close() error
}

// SinkFactory builds a Sink per session.
type SinkFactory func() Sink

// logSink is the default Sink: it counts packets and logs session
// boundaries. Deployments plug a real ingest connector in its place.
type logSink struct {
	log     *slog.Logger
	target  string
	packets atomic.Uint64
}

func NewLogSink(log *slog.Logger) Sink {
	return &logSink{log: log}
}

func (s *logSink) Open(outputTarget string) error {
	s.target = outputTarget
	s.log.Info("ingest sink opened", "output_target", outputTarget)
	return nil
}

func (s *logSink) WriteRTP(kind string, pkt *rtp.Packet) error {
	s.packets.Add(1)
	return nil
}

func (s *logSink) Close() error {
	s.log.Info("ingest sink closed", "output_target", s.target, "packets", s.packets.Load())
	return nil
}
