// Package options provides configuration parsing for the hub web server's
// process bootstrap, supporting flags, environment variables, and .env
// files with priority-based resolution.
//
// # Overview
//
// This package handles process-level configuration: the listen address,
// the hub root directory, session storage, TLS material, and rate
// limiting for the login endpoint. It does not handle per-vhost hub
// behavior — that lives in a config hashfile resolved through the hub's
// own address space (internal/hub/config.go, spec §4.D). Bootstrap
// settings are needed before a Hub even exists, so they stay in
// flags/env.
//
// Configuration sources are processed in priority order:
//
//  1. Command-line flags (highest priority)
//  2. Environment variables
//  3. .env files (.env.local, .env)
//  4. Default values (lowest priority)
//
// # Usage
//
// Basic usage in main.go:
//
//	import (
//	    "github.com/netresearch/hub-server/internal/options"
//	    "github.com/rs/zerolog/log"
//	)
//
//	func main() {
//	    opts, err := options.Parse()
//	    if err != nil {
//	        log.Fatal().Err(err).Msg("failed to parse configuration")
//	    }
//
//	    zerolog.SetGlobalLevel(opts.LogLevel)
//	}
//
// # Configuration Options
//
// ## Required settings
//
//	HUB_ROOT    Filesystem directory backing the hub's root address space
//
// ## Listening
//
//	LISTEN_ADDR=:8080                     # HTTP listen address (default: :8080)
//
// ## Session management
//
//	PERSIST_SESSIONS=false                # Enable BBolt session persistence (default: false)
//	SESSION_PATH=db.bbolt                 # Database file path (required when PERSIST_SESSIONS=true)
//	SESSION_DURATION=30m                  # Session timeout (default: 30 minutes)
//
// When PERSIST_SESSIONS=true, sessions survive process restarts. When
// false, sessions live in memory only and are lost on restart.
//
// ## Cookie security
//
//	COOKIE_SECURE=true                    # Require HTTPS for session/CSRF cookies (default: true)
//
// ## TLS
//
//	TLS_CERT_FILE                         # Path to TLS certificate
//	TLS_KEY_FILE                          # Path to TLS private key
//	TLS_SKIP_VERIFY=false                 # Skip TLS verification on outbound download requests
//
// TLS_CERT_FILE and TLS_KEY_FILE must both be set or both be empty. They
// are only validated: the server listens on plain HTTP and does not load
// them.
//
// ## Login rate limiting
//
// Bounds repeated failed logins against /sys/login (spec §4.F):
//
//	RATE_LIMIT_MAX_ATTEMPTS=5             # Attempts allowed per window before blocking
//	RATE_LIMIT_WINDOW=1m                  # Window from an IP's first attempt that attempts are counted over
//	RATE_LIMIT_BLOCK_PERIOD=15m           # How long a blocked IP stays blocked
//
// ## Logging
//
//	LOG_LEVEL=info                        # trace, debug, info, warn, error, fatal, panic
//
// # Environment File Format
//
// .env files use KEY=VALUE format, loaded via github.com/joho/godotenv:
//
//	HUB_ROOT=/srv/hub
//	LISTEN_ADDR=:8080
//	LOG_LEVEL=debug
//	PERSIST_SESSIONS=true
//	SESSION_PATH=./session.bbolt
//	SESSION_DURATION=1h
//	COOKIE_SECURE=true
//
// Two files are supported: .env.local (local overrides, not committed)
// and .env (defaults, can be committed as .env.example).
//
// # Command-Line Flags
//
//	./hubserver \
//	  --hub-root /srv/hub \
//	  --listen-addr :8080 \
//	  --log-level debug \
//	  --persist-sessions \
//	  --session-path ./session.bbolt \
//	  --session-duration 1h
//
// Run with --help to see all available flags and their descriptions.
//
// # Validation
//
// Parse validates required fields and value formats, returning a
// ValidationError naming the offending field:
//
//	--hub-root is required
//	--session-path is required when --persist-sessions is set
//	--tls-cert-file/--tls-key-file must both be set or both be empty
//
// # Integration Points
//
//   - cmd/hubserver/main.go: the sole caller of Parse()
//   - internal/web/server.go: consumes Opts to build hub.New, session
//     store, CSRF/rate-limit middleware and the plain-HTTP listener
package options
