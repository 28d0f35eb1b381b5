// Package config loads and validates the process-wide configuration.
//
// Configuration is environment-driven with flag overrides, parsed once at
// startup. The resulting Config is read-only afterwards and safe for
// concurrent reads from every connection.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envVarListenAddr      = "LISTEN_ADDR"
	envVarMode            = "MODE"
	envVarLogFormat       = "LOG_FORMAT"
	envVarLogLevel        = "LOG_LEVEL"
	envVarShutdownTimeout = "SHUTDOWN_TIMEOUT"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"

	// Ingest / WebRTC negotiation knobs.
	envVarIngestBaseURL        = "INGEST_BASE_URL"
	envVarWebRTCPortRangeMin   = "WEBRTC_PORT_RANGE_MIN"
	envVarWebRTCPortRangeMax   = "WEBRTC_PORT_RANGE_MAX"
	envVarStunServerURI        = "STUN_SERVER_URI"
	envVarTCPCandidatesEnabled = "WEBRTC_TCP_CANDIDATES_ENABLED"

	// Signaling WebSocket hardening.
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarWSIdleTimeout                 = "WS_IDLE_TIMEOUT"
	envVarWSPingInterval                = "WS_PING_INTERVAL"

	// Stream metadata datastore.
	envVarDBType = "DB_TYPE"
	envVarDBName = "DB_NAME"
	envVarDBPath = "DB_PATH"
)

const (
	DefaultListenAddr         = "127.0.0.1:8081"
	DefaultShutdown           = 15 * time.Second
	DefaultMode          Mode = ModeDev
	DefaultIngestBaseURL      = "rtmp://127.0.0.1/WebRTCApp"
	DefaultStunServerURI      = "stun:stun1.l.google.com:19302"

	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 50
	DefaultWSIdleTimeout                 = 60 * time.Second
	DefaultWSPingInterval                = 20 * time.Second

	DefaultDBType = "memorydb"
	DefaultDBName = "castbridge"
)

// recommendedPortRangeSize is an intentionally conservative minimum. Each
// publish session consumes UDP ports for ICE; running out manifests as
// hard-to-debug connectivity failures rather than clean errors.
const recommendedPortRangeSize = 100

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// PortRange restricts the UDP ports used for ICE. When nil, pion uses OS
// ephemeral port selection.
type PortRange struct {
	Min uint16
	Max uint16
}

type Config struct {
	ListenAddr      string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	AllowedOrigins  []string

	// IngestBaseURL is the downstream ingest endpoint; the per-stream output
	// target is IngestBaseURL + "/" + streamID.
	IngestBaseURL string

	PortRange            *PortRange
	StunServerURI        string
	TCPCandidatesEnabled bool

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
	WSIdleTimeout                 time.Duration
	WSPingInterval                time.Duration

	DBType string
	DBName string
	DBPath string
}

// OutputTarget derives the ingest URL for a stream.
func (c Config) OutputTarget(streamID string) string {
	return strings.TrimSuffix(c.IngestBaseURL, "/") + "/" + streamID
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, _ := lookup(envVarLogFormat)
	logFormatDefault := envLogFormat
	if logFormatDefault == "" {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, _ := lookup(envVarLogLevel)
	logLevelDefault := envLogLevel
	if logLevelDefault == "" {
		logLevelDefault = "info"
	}

	listenAddr := envOrDefault(lookup, envVarListenAddr, DefaultListenAddr)
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, "")
	ingestBaseURL := envOrDefault(lookup, envVarIngestBaseURL, DefaultIngestBaseURL)
	stunServerURI := envOrDefault(lookup, envVarStunServerURI, DefaultStunServerURI)

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}

	portRangeMin, err := envIntOrDefault(lookup, envVarWebRTCPortRangeMin, 0)
	if err != nil {
		return Config{}, err
	}
	portRangeMax, err := envIntOrDefault(lookup, envVarWebRTCPortRangeMax, 0)
	if err != nil {
		return Config{}, err
	}

	tcpCandidatesEnabled, err := envBoolOrDefault(lookup, envVarTCPCandidatesEnabled, false)
	if err != nil {
		return Config{}, err
	}

	maxSignalingMessageBytes, err := envIntOrDefault(lookup, envVarMaxSignalingMessageBytes, int(DefaultMaxSignalingMessageBytes))
	if err != nil {
		return Config{}, err
	}
	maxSignalingMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	wsIdleTimeout, err := envDurationOrDefault(lookup, envVarWSIdleTimeout, DefaultWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	wsPingInterval, err := envDurationOrDefault(lookup, envVarWSPingInterval, DefaultWSPingInterval)
	if err != nil {
		return Config{}, err
	}

	dbType := envOrDefault(lookup, envVarDBType, DefaultDBType)
	dbName := envOrDefault(lookup, envVarDBName, DefaultDBName)
	dbPath := envOrDefault(lookup, envVarDBPath, "")

	fs := flag.NewFlagSet("castbridge", flag.ContinueOnError)
	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address")
	modeStr := fs.String("mode", modeDefault, "run mode: dev or prod")
	logFormatStr := fs.String("log-format", logFormatDefault, "log format: text or json")
	logLevelStr := fs.String("log-level", logLevelDefault, "log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "graceful shutdown timeout")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "comma-separated allowed Origin values (\"*\" to allow any)")
	fs.StringVar(&ingestBaseURL, "ingest-base-url", ingestBaseURL, "downstream ingest base URL")
	fs.IntVar(&portRangeMin, "webrtc-port-range-min", portRangeMin, "minimum UDP port for ICE (0 = OS default)")
	fs.IntVar(&portRangeMax, "webrtc-port-range-max", portRangeMax, "maximum UDP port for ICE (0 = OS default)")
	fs.StringVar(&stunServerURI, "stun-server-uri", stunServerURI, "STUN server URI for ICE (empty to disable)")
	fs.BoolVar(&tcpCandidatesEnabled, "webrtc-tcp-candidates", tcpCandidatesEnabled, "also gather TCP ICE candidates")
	fs.StringVar(&dbType, "db-type", dbType, "stream metadata store: memorydb or filedb")
	fs.StringVar(&dbName, "db-name", dbName, "stream metadata store name")
	fs.StringVar(&dbPath, "db-path", dbPath, "directory for file-backed stores (filedb)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	mode, err := parseMode(*modeStr)
	if err != nil {
		return Config{}, err
	}
	logFormat, err := parseLogFormat(*logFormatStr)
	if err != nil {
		return Config{}, err
	}
	logLevel, err := parseLogLevel(*logLevelStr)
	if err != nil {
		return Config{}, err
	}
	allowedOrigins, err := parseAllowedOrigins(allowedOriginsStr)
	if err != nil {
		return Config{}, err
	}

	var portRange *PortRange
	if portRangeMin != 0 || portRangeMax != 0 {
		minPort, err := parsePortInt(envVarWebRTCPortRangeMin, portRangeMin)
		if err != nil {
			return Config{}, err
		}
		maxPort, err := parsePortInt(envVarWebRTCPortRangeMax, portRangeMax)
		if err != nil {
			return Config{}, err
		}
		if minPort > maxPort {
			return Config{}, fmt.Errorf("%s (%d) must not exceed %s (%d)", envVarWebRTCPortRangeMin, minPort, envVarWebRTCPortRangeMax, maxPort)
		}
		portRange = &PortRange{Min: minPort, Max: maxPort}
	}

	cfg := Config{
		ListenAddr:      listenAddr,
		Mode:            mode,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		ShutdownTimeout: shutdownTimeout,
		AllowedOrigins:  allowedOrigins,

		IngestBaseURL:        ingestBaseURL,
		PortRange:            portRange,
		StunServerURI:        stunServerURI,
		TCPCandidatesEnabled: tcpCandidatesEnabled,

		MaxSignalingMessageBytes:      int64(maxSignalingMessageBytes),
		MaxSignalingMessagesPerSecond: maxSignalingMessagesPerSecond,
		WSIdleTimeout:                 wsIdleTimeout,
		WSPingInterval:                wsPingInterval,

		DBType: dbType,
		DBName: dbName,
		DBPath: dbPath,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%s must not be empty", envVarListenAddr)
	}
	if c.IngestBaseURL == "" {
		return fmt.Errorf("%s must not be empty", envVarIngestBaseURL)
	}
	if u, err := url.Parse(c.IngestBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %s %q (expected an absolute URL like rtmp://host/app)", envVarIngestBaseURL, c.IngestBaseURL)
	}
	if c.StunServerURI != "" {
		if err := validateStunURI(c.StunServerURI); err != nil {
			return fmt.Errorf("invalid %s %q: %w", envVarStunServerURI, c.StunServerURI, err)
		}
	}
	if c.MaxSignalingMessageBytes <= 0 {
		return fmt.Errorf("%s must be > 0", envVarMaxSignalingMessageBytes)
	}
	if c.MaxSignalingMessagesPerSecond <= 0 {
		return fmt.Errorf("%s must be > 0", envVarMaxSignalingMessagesPerSecond)
	}
	if c.WSPingInterval > 0 && c.WSIdleTimeout > 0 && c.WSPingInterval >= c.WSIdleTimeout {
		return fmt.Errorf("%s must be shorter than %s", envVarWSPingInterval, envVarWSIdleTimeout)
	}
	if c.DBType == "" {
		return fmt.Errorf("%s must not be empty", envVarDBType)
	}
	return nil
}

// PortRangeWarning returns a human-readable warning when the configured ICE
// port range is likely too small for production, or "" when it is fine.
func (c Config) PortRangeWarning() string {
	if c.PortRange == nil {
		return ""
	}
	size := int(c.PortRange.Max) - int(c.PortRange.Min) + 1
	if size < recommendedPortRangeSize {
		return fmt.Sprintf("WEBRTC_PORT_RANGE spans only %d ports; fewer than %d may exhaust under load", size, recommendedPortRangeSize)
	}
	return ""
}

// validateStunURI accepts RFC 7064/7065 style URIs: stun:host[:port],
// stuns:host[:port], turn:host[:port][?transport=...], turns:...
func validateStunURI(raw string) error {
	scheme, rest, found := strings.Cut(raw, ":")
	if !found || rest == "" {
		return fmt.Errorf("expected scheme:host[:port]")
	}
	switch scheme {
	case "stun", "stuns", "turn", "turns":
	default:
		return fmt.Errorf("unsupported scheme %q", scheme)
	}
	hostport, _, _ := strings.Cut(rest, "?")
	host, portStr, found := strings.Cut(hostport, ":")
	if host == "" {
		return fmt.Errorf("missing host")
	}
	if found {
		n, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil || n == 0 {
			return fmt.Errorf("invalid port %q", portStr)
		}
	}
	return nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("unsupported mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", raw)
	}
}

func parseAllowedOrigins(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			out = append(out, entry)
			continue
		}
		u, err := url.Parse(entry)
		if err != nil || u.Scheme == "" || u.Host == "" || (u.Path != "" && u.Path != "/") {
			return nil, fmt.Errorf("invalid origin %q (expected full origin like https://example.com)", entry)
		}
		out = append(out, strings.ToLower(u.Scheme)+"://"+strings.ToLower(u.Host))
	}

	return out, nil
}

func parsePortInt(key string, v int) (uint16, error) {
	if v < 1 || v > 65535 {
		return 0, fmt.Errorf("invalid %s %d (expected 1-65535)", key, v)
	}
	return uint16(v), nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envBoolOrDefault(lookup func(string) (string, bool), key string, fallback bool) (bool, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
