package streamid

import (
	"strings"
	"testing"
)

func TestIsValid(t *testing.T) {
	cases := []struct {
		name     string
		streamID string
		want     bool
	}{
		{"simple", "cam1", true},
		{"underscore and hyphen", "front_door-2", true},
		{"digits only", "0123456789", true},
		{"mixed case", "CamOne", true},
		{"empty", "", false},
		{"space", "cam 1", false},
		{"slash", "a/b", false},
		{"dot", "cam.1", false},
		{"path traversal", "../etc", false},
		{"unicode", "caméra", false},
		{"max length", strings.Repeat("a", 255), true},
		{"over max length", strings.Repeat("a", 256), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValid(tc.streamID); got != tc.want {
				t.Fatalf("IsValid(%q) = %v, want %v", tc.streamID, got, tc.want)
			}
		})
	}
}
