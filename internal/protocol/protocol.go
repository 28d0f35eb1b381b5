// Package protocol models the JSON control-channel protocol spoken with
// browser publishers.
//
// Inbound messages are flat JSON objects with a mandatory "command" field;
// outbound messages mirror the same shape. This package models the wire
// surface only and deliberately avoids any WebRTC library types.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Command string

const (
	CommandPublish           Command = "publish"
	CommandTakeConfiguration Command = "takeConfiguration"
	CommandTakeCandidate     Command = "takeCandidate"
	CommandStop              Command = "stop"
	CommandPing              Command = "ping"

	// Outbound-only commands.
	CommandPong         Command = "pong"
	CommandNotification Command = "notification"
	CommandError        Command = "error"
	CommandStart        Command = "start"
)

// Notification definitions.
const (
	DefinitionPublishStarted  = "publishStarted"
	DefinitionPublishFinished = "publishFinished"
)

// Error definitions.
const (
	DefinitionNoStreamIDSpecified     = "noStreamIdSpecified"
	DefinitionInvalidStreamName       = "invalidStreamName"
	DefinitionNotSetRemoteDescription = "notSetRemoteDescription"
	DefinitionNotSetLocalDescription  = "notSetLocalDescription"
)

var (
	ErrMalformed      = errors.New("protocol: malformed message")
	ErrMissingCommand = errors.New("protocol: missing command")
)

// Envelope is a decoded inbound control message.
//
// Pointer fields distinguish "absent" from zero values where the distinction
// matters for per-command validation.
type Envelope struct {
	Command  Command `json:"command"`
	StreamID string  `json:"streamId,omitempty"`

	SDPType string `json:"type,omitempty"`
	SDP     string `json:"sdp,omitempty"`

	CandidateID    string `json:"candidateId,omitempty"`
	CandidateSDP   string `json:"candidateSdp,omitempty"`
	CandidateLabel *int64 `json:"candidateLabel,omitempty"`
}

// Decode parses raw into an Envelope.
//
// A payload that is not a JSON object, or one without a "command" field,
// yields an error; callers drop such messages without responding. Unknown
// fields are tolerated so clients can carry protocol extensions.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Command == "" {
		return Envelope{}, ErrMissingCommand
	}
	return env, nil
}

// ValidateFields checks command-specific required fields.
//
// StreamID presence and format are checked by the gateway before dispatch and
// are not re-checked here.
func (e Envelope) ValidateFields() error {
	switch e.Command {
	case CommandTakeConfiguration:
		if e.SDP == "" {
			return fmt.Errorf("%w: takeConfiguration without sdp", ErrMalformed)
		}
	case CommandTakeCandidate:
		if e.CandidateSDP == "" {
			return fmt.Errorf("%w: takeCandidate without candidateSdp", ErrMalformed)
		}
		if e.CandidateLabel == nil {
			return fmt.Errorf("%w: takeCandidate without candidateLabel", ErrMalformed)
		}
		if *e.CandidateLabel < 0 || *e.CandidateLabel > 0xffff {
			return fmt.Errorf("%w: candidateLabel %d out of range", ErrMalformed, *e.CandidateLabel)
		}
	}
	return nil
}
