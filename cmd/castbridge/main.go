package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/castbridge/castbridge/internal/config"
	"github.com/castbridge/castbridge/internal/datastore"
	"github.com/castbridge/castbridge/internal/forward"
	"github.com/castbridge/castbridge/internal/gateway"
	"github.com/castbridge/castbridge/internal/httpserver"
	"github.com/castbridge/castbridge/internal/metrics"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	// Probe the WebRTC API configuration early so a bad port range or STUN
	// URI fails on startup instead of on the first publish. No sockets are
	// opened here; ICE only binds ports once sessions negotiate.
	probe := forward.Settings{StunServerURI: cfg.StunServerURI, TCPCandidatesEnabled: cfg.TCPCandidatesEnabled}
	if cfg.PortRange != nil {
		probe.PortRangeMin = cfg.PortRange.Min
		probe.PortRangeMax = cfg.PortRange.Max
	}
	if _, err := forward.NewAPI(probe, nil); err != nil {
		logger.Error("failed to configure webrtc", "err", err)
		os.Exit(2)
	}

	logger.Info("starting castbridge",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"ingest_base_url", cfg.IngestBaseURL,
		"stun_server_uri", cfg.StunServerURI,
		"tcp_candidates_enabled", cfg.TCPCandidatesEnabled,
		"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
		"max_signaling_messages_per_second", cfg.MaxSignalingMessagesPerSecond,
		"ws_idle_timeout", cfg.WSIdleTimeout,
		"ws_ping_interval", cfg.WSPingInterval,
		"db_type", cfg.DBType,
	)

	logStartupWarnings(logger, cfg)

	store, err := datastore.New(cfg.DBType, cfg.DBName, cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open datastore", "err", err)
		os.Exit(2)
	}
	defer store.Close()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})

	m := metrics.New()
	gw := gateway.New(cfg, logger, m, store, forward.NewPionFactory(logger))
	srv.Mux().Handle("GET /ws", gw)

	// Expose internal counters in Prometheus' text format.
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		gw.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}
	gw.Close()

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
