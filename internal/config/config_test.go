package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func lookupFromMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(lookupFromMap(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.Mode != ModeDev {
		t.Errorf("Mode = %q, want dev", cfg.Mode)
	}
	if cfg.LogFormat != LogFormatText {
		t.Errorf("LogFormat = %q, want text (dev default)", cfg.LogFormat)
	}
	if cfg.IngestBaseURL != DefaultIngestBaseURL {
		t.Errorf("IngestBaseURL = %q", cfg.IngestBaseURL)
	}
	if cfg.StunServerURI != DefaultStunServerURI {
		t.Errorf("StunServerURI = %q", cfg.StunServerURI)
	}
	if cfg.PortRange != nil {
		t.Errorf("PortRange = %+v, want nil", cfg.PortRange)
	}
	if cfg.TCPCandidatesEnabled {
		t.Errorf("TCPCandidatesEnabled = true, want false")
	}
	if cfg.MaxSignalingMessageBytes != DefaultMaxSignalingMessageBytes {
		t.Errorf("MaxSignalingMessageBytes = %d", cfg.MaxSignalingMessageBytes)
	}
	if cfg.DBType != DefaultDBType {
		t.Errorf("DBType = %q", cfg.DBType)
	}
	if cfg.ShutdownTimeout != DefaultShutdown {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_ProdDefaultsToJSONLogs(t *testing.T) {
	cfg, err := load(lookupFromMap(map[string]string{"MODE": "prod"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("LogFormat = %q, want json", cfg.LogFormat)
	}
}

func TestLoad_EnvValues(t *testing.T) {
	env := map[string]string{
		"LISTEN_ADDR":                       "0.0.0.0:5080",
		"INGEST_BASE_URL":                   "rtmp://ingest.internal/live",
		"WEBRTC_PORT_RANGE_MIN":             "50000",
		"WEBRTC_PORT_RANGE_MAX":             "51000",
		"STUN_SERVER_URI":                   "stun:stun.example.com:3478",
		"WEBRTC_TCP_CANDIDATES_ENABLED":     "true",
		"MAX_SIGNALING_MESSAGE_BYTES":       "4096",
		"MAX_SIGNALING_MESSAGES_PER_SECOND": "10",
		"WS_IDLE_TIMEOUT":                   "30s",
		"WS_PING_INTERVAL":                  "10s",
		"DB_TYPE":                           "filedb",
		"DB_NAME":                           "streams",
		"DB_PATH":                           "/var/lib/castbridge",
		"LOG_LEVEL":                         "debug",
	}
	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != "0.0.0.0:5080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.PortRange == nil || cfg.PortRange.Min != 50000 || cfg.PortRange.Max != 51000 {
		t.Errorf("PortRange = %+v", cfg.PortRange)
	}
	if !cfg.TCPCandidatesEnabled {
		t.Errorf("TCPCandidatesEnabled = false")
	}
	if cfg.OutputTarget("cam1") != "rtmp://ingest.internal/live/cam1" {
		t.Errorf("OutputTarget = %q", cfg.OutputTarget("cam1"))
	}
	if cfg.WSIdleTimeout != 30*time.Second || cfg.WSPingInterval != 10*time.Second {
		t.Errorf("ws timeouts = %v/%v", cfg.WSIdleTimeout, cfg.WSPingInterval)
	}
	if cfg.DBType != "filedb" || cfg.DBName != "streams" || cfg.DBPath != "/var/lib/castbridge" {
		t.Errorf("db config = %q/%q/%q", cfg.DBType, cfg.DBName, cfg.DBPath)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	env := map[string]string{"LISTEN_ADDR": "127.0.0.1:1111"}
	cfg, err := load(lookupFromMap(env), []string{"-listen-addr", "127.0.0.1:2222", "-webrtc-tcp-candidates"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:2222" {
		t.Errorf("ListenAddr = %q, want flag value", cfg.ListenAddr)
	}
	if !cfg.TCPCandidatesEnabled {
		t.Errorf("TCPCandidatesEnabled = false, want true")
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad mode", map[string]string{"MODE": "staging"}, "unsupported mode"},
		{"bad port range order", map[string]string{"WEBRTC_PORT_RANGE_MIN": "60000", "WEBRTC_PORT_RANGE_MAX": "50000"}, "must not exceed"},
		{"port out of range", map[string]string{"WEBRTC_PORT_RANGE_MIN": "70000", "WEBRTC_PORT_RANGE_MAX": "70001"}, "expected 1-65535"},
		{"bad stun scheme", map[string]string{"STUN_SERVER_URI": "http://stun.example.com"}, "unsupported scheme"},
		{"bad ingest url", map[string]string{"INGEST_BASE_URL": "not a url"}, "INGEST_BASE_URL"},
		{"bad bool", map[string]string{"WEBRTC_TCP_CANDIDATES_ENABLED": "maybe"}, "WEBRTC_TCP_CANDIDATES_ENABLED"},
		{"bad message bytes", map[string]string{"MAX_SIGNALING_MESSAGE_BYTES": "-1"}, "must be > 0"},
		{"ping >= idle", map[string]string{"WS_PING_INTERVAL": "2m"}, "WS_PING_INTERVAL"},
		{"bad origin", map[string]string{"ALLOWED_ORIGINS": "example.com"}, "invalid origin"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(lookupFromMap(tc.env), nil)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestParseAllowedOrigins(t *testing.T) {
	got, err := parseAllowedOrigins(" https://Studio.Example.com , * ,http://localhost:3000")
	if err != nil {
		t.Fatalf("parseAllowedOrigins: %v", err)
	}
	want := []string{"https://studio.example.com", "*", "http://localhost:3000"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPortRangeWarning(t *testing.T) {
	cfg := Config{PortRange: &PortRange{Min: 50000, Max: 50009}}
	if cfg.PortRangeWarning() == "" {
		t.Fatalf("expected warning for a 10-port range")
	}
	cfg.PortRange = &PortRange{Min: 50000, Max: 51000}
	if w := cfg.PortRangeWarning(); w != "" {
		t.Fatalf("unexpected warning: %q", w)
	}
	cfg.PortRange = nil
	if w := cfg.PortRangeWarning(); w != "" {
		t.Fatalf("unexpected warning with no range: %q", w)
	}
}
