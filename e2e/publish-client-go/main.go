// Command publish-client-go is a minimal publisher for manual and E2E testing.
// It dials the signaling endpoint, publishes a stream, negotiates a
// PeerConnection and pushes synthetic VP8 samples until interrupted.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

type signalMessage struct {
	Command        string `json:"command"`
	StreamID       string `json:"streamId,omitempty"`
	Definition     string `json:"definition,omitempty"`
	SDPType        string `json:"type,omitempty"`
	SDP            string `json:"sdp,omitempty"`
	CandidateID    string `json:"candidateId,omitempty"`
	CandidateSDP   string `json:"candidateSdp,omitempty"`
	CandidateLabel *int64 `json:"candidateLabel,omitempty"`
}

func main() {
	serverURL := envOrDefault("SERVER_WS_URL", "ws://127.0.0.1:8081/ws")
	streamID := envOrDefault("STREAM_ID", "e2e-stream")

	ws, resp, err := websocket.DefaultDialer.Dial(serverURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", serverURL, err)
		os.Exit(1)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer ws.Close()

	var writeMu sync.Mutex
	send := func(msg signalMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.WriteJSON(msg)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "new peer connection: %v\n", err)
		os.Exit(1)
	}
	defer pc.Close()

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "publish-client",
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "new track: %v\n", err)
		os.Exit(1)
	}
	if _, err := pc.AddTrack(track); err != nil {
		fmt.Fprintf(os.Stderr, "add track: %v\n", err)
		os.Exit(1)
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
		var label int64
		if init.SDPMLineIndex != nil {
			label = int64(*init.SDPMLineIndex)
		}
		_ = send(signalMessage{
			Command:        "takeCandidate",
			StreamID:       streamID,
			CandidateID:    mid,
			CandidateSDP:   init.Candidate,
			CandidateLabel: &label,
		})
	})

	started := make(chan struct{})
	var startedOnce sync.Once

	// Reader goroutine: drives the signaling state from server messages.
	go func() {
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var msg signalMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				fmt.Fprintf(os.Stderr, "bad message %q: %v\n", raw, err)
				continue
			}

			switch msg.Command {
			case "start":
				offer, err := pc.CreateOffer(nil)
				if err != nil {
					fmt.Fprintf(os.Stderr, "create offer: %v\n", err)
					return
				}
				if err := pc.SetLocalDescription(offer); err != nil {
					fmt.Fprintf(os.Stderr, "set local offer: %v\n", err)
					return
				}
				_ = send(signalMessage{
					Command:  "takeConfiguration",
					StreamID: streamID,
					SDPType:  "offer",
					SDP:      offer.SDP,
				})
			case "takeConfiguration":
				if err := pc.SetRemoteDescription(webrtc.SessionDescription{
					Type: webrtc.SDPTypeAnswer,
					SDP:  msg.SDP,
				}); err != nil {
					fmt.Fprintf(os.Stderr, "set remote answer: %v\n", err)
					return
				}
			case "takeCandidate":
				var lineIndex uint16
				if msg.CandidateLabel != nil {
					lineIndex = uint16(*msg.CandidateLabel)
				}
				mid := msg.CandidateID
				_ = pc.AddICECandidate(webrtc.ICECandidateInit{
					Candidate:     msg.CandidateSDP,
					SDPMid:        &mid,
					SDPMLineIndex: &lineIndex,
				})
			case "notification":
				switch msg.Definition {
				case "publishStarted":
					startedOnce.Do(func() { close(started) })
				case "publishFinished":
					fmt.Println("FINISHED")
				}
			case "error":
				fmt.Fprintf(os.Stderr, "signaling error: %s\n", msg.Definition)
			case "pong":
			}
		}
	}()

	if err := send(signalMessage{Command: "publish", StreamID: streamID}); err != nil {
		fmt.Fprintf(os.Stderr, "publish: %v\n", err)
		os.Exit(1)
	}

	select {
	case <-started:
		fmt.Printf("READY %s\n", streamID)
	case <-time.After(30 * time.Second):
		fmt.Fprintln(os.Stderr, "timed out waiting for publishStarted")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = send(signalMessage{Command: "stop", StreamID: streamID})
			time.Sleep(200 * time.Millisecond)
			return
		case <-ticker.C:
			if err := track.WriteSample(media.Sample{
				Data:     []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a},
				Duration: 20 * time.Millisecond,
			}); err != nil {
				fmt.Fprintf(os.Stderr, "write sample: %v\n", err)
				return
			}
		}
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
