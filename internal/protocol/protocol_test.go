package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecode_Publish(t *testing.T) {
	env, err := Decode([]byte(`{"command":"publish","streamId":"cam1"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Command != CommandPublish || env.StreamID != "cam1" {
		t.Fatalf("unexpected envelope: %#v", env)
	}
}

func TestDecode_TakeCandidate(t *testing.T) {
	raw := []byte(`{
		"command":"takeCandidate",
		"streamId":"cam1",
		"candidateId":"0",
		"candidateSdp":"candidate:1 1 udp 2130706431 127.0.0.1 50000 typ host",
		"candidateLabel":0
	}`)
	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := env.ValidateFields(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if env.CandidateLabel == nil || *env.CandidateLabel != 0 {
		t.Fatalf("candidateLabel not decoded: %#v", env)
	}
}

func TestDecode_ToleratesUnknownFields(t *testing.T) {
	env, err := Decode([]byte(`{"command":"publish","streamId":"cam1","video":true,"audio":true}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Command != CommandPublish {
		t.Fatalf("command = %q", env.Command)
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"not json",
		`"a string"`,
		`[1,2,3]`,
		`{"command":42}`,
	} {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Decode(%q) err = %v, want ErrMalformed", raw, err)
		}
	}
}

func TestDecode_MissingCommand(t *testing.T) {
	if _, err := Decode([]byte(`{"streamId":"cam1"}`)); !errors.Is(err, ErrMissingCommand) {
		t.Fatalf("err = %v, want ErrMissingCommand", err)
	}
	if _, err := Decode([]byte(`{}`)); !errors.Is(err, ErrMissingCommand) {
		t.Fatalf("err = %v, want ErrMissingCommand", err)
	}
}

func TestValidateFields(t *testing.T) {
	label := int64(0)
	huge := int64(1 << 20)

	cases := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{"publish needs nothing extra", Envelope{Command: CommandPublish, StreamID: "cam1"}, false},
		{"takeConfiguration ok", Envelope{Command: CommandTakeConfiguration, SDPType: "offer", SDP: "v=0"}, false},
		{"takeConfiguration missing sdp", Envelope{Command: CommandTakeConfiguration, SDPType: "offer"}, true},
		{"takeCandidate ok", Envelope{Command: CommandTakeCandidate, CandidateSDP: "candidate:...", CandidateLabel: &label}, false},
		{"takeCandidate missing label", Envelope{Command: CommandTakeCandidate, CandidateSDP: "candidate:..."}, true},
		{"takeCandidate missing sdp", Envelope{Command: CommandTakeCandidate, CandidateLabel: &label}, true},
		{"takeCandidate label out of range", Envelope{Command: CommandTakeCandidate, CandidateSDP: "c", CandidateLabel: &huge}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.env.ValidateFields()
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateFields() = %v, wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestEncode_Shapes(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want map[string]any
	}{
		{
			"pong",
			Pong(),
			map[string]any{"command": "pong"},
		},
		{
			"error without stream id",
			ErrorMessage(DefinitionNoStreamIDSpecified, ""),
			map[string]any{"command": "error", "definition": "noStreamIdSpecified"},
		},
		{
			"notification with room",
			Notification(DefinitionPublishStarted, "cam1", "lobby"),
			map[string]any{"command": "notification", "definition": "publishStarted", "streamId": "cam1", "roomName": "lobby"},
		},
		{
			"sdp configuration",
			SDPConfiguration("v=0", "answer", "cam1"),
			map[string]any{"command": "takeConfiguration", "sdp": "v=0", "type": "answer", "streamId": "cam1"},
		},
		{
			"take candidate",
			TakeCandidate(0, "0", "candidate:1", "cam1"),
			map[string]any{"command": "takeCandidate", "candidateLabel": float64(0), "candidateId": "0", "candidateSdp": "candidate:1", "streamId": "cam1"},
		},
		{
			"start",
			Start("cam1"),
			map[string]any{"command": "start", "streamId": "cam1"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got map[string]any
			if err := json.Unmarshal(tc.msg.Encode(), &got); err != nil {
				t.Fatalf("unmarshal encoded: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("encoded fields = %v, want %v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Fatalf("field %q = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}
