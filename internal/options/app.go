// Package options provides configuration parsing and environment variable
// handling for the hub web server's process bootstrap (listen address, hub
// root, session/cookie settings, TLS material, logging). This is deliberately
// separate from the hub's own config-hashfile overlay (internal/hub/config.go,
// spec §4.D): bootstrap settings are needed before a Hub even exists, so they
// stay in flags/env, layered the way the teacher's options package does.
package options

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Opts holds all bootstrap configuration for the hub web server.
type Opts struct {
	LogLevel zerolog.Level

	ListenAddr string
	HubRoot    string

	PersistSessions bool
	SessionPath     string
	SessionDuration time.Duration

	// Cookie security settings
	CookieSecure bool

	// TLS settings
	TLSCertFile   string
	TLSKeyFile    string
	TLSSkipVerify bool

	// RateLimit settings for the /sys/login endpoint.
	RateLimitMaxAttempts int
	RateLimitWindow       time.Duration
	RateLimitBlockPeriod  time.Duration
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// validateRequired checks if a required value is provided.
func validateRequired(name string, value *string) error {
	if *value == "" {
		return ValidationError{Field: name, Message: "this option is required"}
	}

	return nil
}

func envStringOrDefault(name, d string) string {
	if v, exists := os.LookupEnv(name); exists && v != "" {
		return v
	}

	return d
}

func envDurationOrDefault(name string, d time.Duration) (time.Duration, error) {
	raw := envStringOrDefault(name, d.String())

	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, ValidationError{
			Field:   name,
			Message: fmt.Sprintf("could not parse %q as duration: %v", raw, err),
		}
	}

	return v, nil
}

func envLogLevelOrDefault(name string, d zerolog.Level) (string, error) {
	raw := envStringOrDefault(name, d.String())

	if _, err := zerolog.ParseLevel(raw); err != nil {
		return "", ValidationError{
			Field:   name,
			Message: fmt.Sprintf("could not parse %q as log level: %v", raw, err),
		}
	}

	return raw, nil
}

func envBoolOrDefault(name string, d bool) (bool, error) {
	raw := envStringOrDefault(name, strconv.FormatBool(d))

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, ValidationError{
			Field:   name,
			Message: fmt.Sprintf("could not parse %q as bool: %v", raw, err),
		}
	}

	return v, nil
}

func envIntOrDefault(name string, d int) (int, error) {
	raw := envStringOrDefault(name, strconv.Itoa(d))

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ValidationError{
			Field:   name,
			Message: fmt.Sprintf("could not parse %q as int: %v", raw, err),
		}
	}

	return v, nil
}

// Parse parses command line flags and environment variables to build the
// server's bootstrap configuration. It loads from .env files, parses flags,
// and validates required settings.
func Parse() (*Opts, error) {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	logLevelStr, err := envLogLevelOrDefault("LOG_LEVEL", zerolog.InfoLevel)
	if err != nil {
		return nil, err
	}

	persistSessions, err := envBoolOrDefault("PERSIST_SESSIONS", false)
	if err != nil {
		return nil, err
	}

	sessionDuration, err := envDurationOrDefault("SESSION_DURATION", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	cookieSecure, err := envBoolOrDefault("COOKIE_SECURE", true)
	if err != nil {
		return nil, err
	}

	tlsSkipVerify, err := envBoolOrDefault("TLS_SKIP_VERIFY", false)
	if err != nil {
		return nil, err
	}

	rateLimitMaxAttempts, err := envIntOrDefault("RATE_LIMIT_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}

	rateLimitWindow, err := envDurationOrDefault("RATE_LIMIT_WINDOW", 1*time.Minute)
	if err != nil {
		return nil, err
	}

	rateLimitBlockPeriod, err := envDurationOrDefault("RATE_LIMIT_BLOCK_PERIOD", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	var (
		fLogLevel = flag.String("log-level", logLevelStr,
			"Log level. Valid values are: trace, debug, info, warn, error, fatal, panic.")

		fListenAddr = flag.String("listen-addr", envStringOrDefault("LISTEN_ADDR", ":8080"),
			"Address the HTTP server listens on.")
		fHubRoot = flag.String("hub-root", envStringOrDefault("HUB_ROOT", ""),
			"Filesystem directory backing the hub's root address space.")

		fPersistSessions = flag.Bool("persist-sessions", persistSessions,
			"Whether or not to persist sessions into a Bolt database. Useful for development.")
		fSessionPath = flag.String("session-path", envStringOrDefault("SESSION_PATH", "db.bbolt"),
			"Path to the session database file. (Only required when --persist-sessions is set)")
		fSessionDuration = flag.Duration("session-duration", sessionDuration,
			"Duration of the session. (Only required when --persist-sessions is set)")

		fCookieSecure = flag.Bool("cookie-secure", cookieSecure,
			"Require HTTPS for session and CSRF cookies. "+
				"Set to false only for HTTP-only environments. Defaults to true for security.")

		fTLSCertFile = flag.String("tls-cert-file", envStringOrDefault("TLS_CERT_FILE", ""),
			"Path to the TLS certificate. Only validated together with --tls-key-file; the server listens on plain HTTP.")
		fTLSKeyFile = flag.String("tls-key-file", envStringOrDefault("TLS_KEY_FILE", ""),
			"Path to the TLS private key.")
		fTLSSkipVerify = flag.Bool("tls-skip-verify", tlsSkipVerify,
			"Skip TLS certificate verification on outbound requests (the download verb). "+
				"Use only for development with self-signed certificates.")

		fRateLimitMaxAttempts = flag.Int("rate-limit-max-attempts", rateLimitMaxAttempts,
			"Maximum login attempts per window before an IP is blocked.")
		fRateLimitWindow = flag.Duration("rate-limit-window", rateLimitWindow,
			"Window, starting at an IP's first counted attempt, over which login attempts are counted.")
		fRateLimitBlockPeriod = flag.Duration("rate-limit-block-period", rateLimitBlockPeriod,
			"How long an IP stays blocked after exceeding the attempt limit.")
	)

	if !flag.Parsed() {
		flag.Parse()
	}

	logLevel, err := zerolog.ParseLevel(*fLogLevel)
	if err != nil {
		return nil, ValidationError{Field: "log-level", Message: err.Error()}
	}

	if err := validateRequired("hub-root", fHubRoot); err != nil {
		return nil, err
	}

	if *fPersistSessions {
		if err := validateRequired("session-path", fSessionPath); err != nil {
			return nil, err
		}
	}

	if (*fTLSCertFile == "") != (*fTLSKeyFile == "") {
		return nil, ValidationError{Field: "tls-cert-file/tls-key-file", Message: "must both be set or both be empty"}
	}

	return &Opts{
		LogLevel: logLevel,

		ListenAddr: *fListenAddr,
		HubRoot:    *fHubRoot,

		PersistSessions: *fPersistSessions,
		SessionPath:     *fSessionPath,
		SessionDuration: *fSessionDuration,

		CookieSecure: *fCookieSecure,

		TLSCertFile:   *fTLSCertFile,
		TLSKeyFile:    *fTLSKeyFile,
		TLSSkipVerify: *fTLSSkipVerify,

		RateLimitMaxAttempts: *fRateLimitMaxAttempts,
		RateLimitWindow:      *fRateLimitWindow,
		RateLimitBlockPeriod: *fRateLimitBlockPeriod,
	}, nil
}
