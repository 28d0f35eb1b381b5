package protocol

import "encoding/json"

// Message is an outbound control message. Constructors below produce every
// shape the gateway emits; fields not used by a shape stay omitted.
type Message struct {
	Command  Command `json:"command"`
	StreamID string  `json:"streamId,omitempty"`

	Definition string `json:"definition,omitempty"`
	RoomName   string `json:"roomName,omitempty"`

	SDPType string `json:"type,omitempty"`
	SDP     string `json:"sdp,omitempty"`

	CandidateID    string `json:"candidateId,omitempty"`
	CandidateSDP   string `json:"candidateSdp,omitempty"`
	CandidateLabel *int64 `json:"candidateLabel,omitempty"`
}

// Encode serializes the message for the wire.
//
// Every field is producer-controlled (plain strings and integers), so
// serialization has no failure path of its own.
func (m Message) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}

func Pong() Message {
	return Message{Command: CommandPong}
}

func Notification(definition, streamID, roomName string) Message {
	return Message{
		Command:    CommandNotification,
		Definition: definition,
		StreamID:   streamID,
		RoomName:   roomName,
	}
}

func ErrorMessage(definition, streamID string) Message {
	return Message{
		Command:    CommandError,
		Definition: definition,
		StreamID:   streamID,
	}
}

// SDPConfiguration echoes a negotiated session description to the client.
func SDPConfiguration(description, sdpType, streamID string) Message {
	return Message{
		Command:  CommandTakeConfiguration,
		SDP:      description,
		SDPType:  sdpType,
		StreamID: streamID,
	}
}

// TakeCandidate carries a server-side connectivity candidate to the client.
func TakeCandidate(lineIndex int64, mid, sdp, streamID string) Message {
	return Message{
		Command:        CommandTakeCandidate,
		CandidateLabel: &lineIndex,
		CandidateID:    mid,
		CandidateSDP:   sdp,
		StreamID:       streamID,
	}
}

// Start cues the client to begin the offer/answer exchange for streamID.
func Start(streamID string) Message {
	return Message{Command: CommandStart, StreamID: streamID}
}
