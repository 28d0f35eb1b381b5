package main

import (
	"log/slog"

	"github.com/castbridge/castbridge/internal/config"
	"github.com/castbridge/castbridge/internal/datastore"
)

func logStartupWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if containsString(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && len(cfg.AllowedOrigins) == 0 {
		logger.Warn("startup security warning: ALLOWED_ORIGINS is unset while --mode=prod (only same-host browser clients can connect)",
			"warning_code", "allowed_origins_unset_in_prod",
			"mode", cfg.Mode,
		)
	}

	if cfg.StunServerURI == "" {
		logger.Warn("startup warning: STUN_SERVER_URI is empty; publishers behind NAT may fail to connect",
			"warning_code", "stun_server_unset",
			"mode", cfg.Mode,
		)
	}

	if warning := cfg.PortRangeWarning(); warning != "" {
		logger.Warn("startup warning: "+warning,
			"warning_code", "webrtc_port_range_small",
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.DBType == datastore.TypeMemory {
		logger.Warn("startup warning: DB_TYPE=memorydb loses broadcast records on restart while --mode=prod",
			"warning_code", "memory_db_in_prod",
			"db_type", cfg.DBType,
			"mode", cfg.Mode,
		)
	}
}

func containsString(xs []string, v string) bool {
	for _, s := range xs {
		if s == v {
			return true
		}
	}
	return false
}
