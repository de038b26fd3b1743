package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Portal holds the settings the account controller and the accounting model
// look up at request time.
type Portal struct {
	DefaultRadiusGroup            string
	MobilePhoneRegistrationExpire time.Duration
	CreditCardRegistrationExpire  time.Duration
	LocalTimeRadiusAccounting     bool
	DefaultRadacctResultsPerPage  int
	IPNSharedSecret               string
}

type Config struct {
	ListenAddr string
	LogLevel   string
	LogFormat  string

	DBPath            string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	RadiusDBDriver   string
	RadiusDBDSN      string
	RadiusDBTimeZone string

	SessionCookieName   string
	OperatorCookieName  string
	SessionIdleMinutes  int
	SessionAbsoluteHour int
	CookieSecureMode    string
	TrustProxy          bool
	CORSAllowedOrigins  []string

	PasswordMinLength int
	PasswordMaxLength int

	HTTPReadTimeoutSec       int
	HTTPReadHeaderTimeoutSec int
	HTTPWriteTimeoutSec      int
	HTTPIdleTimeoutSec       int
	ShutdownTimeoutSec       int

	BootstrapOperatorLogin    string
	BootstrapOperatorPassword string

	JobSink string

	Portal Portal
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:                env("LISTEN_ADDR", ":8080"),
		LogLevel:                  strings.ToLower(env("LOG_LEVEL", "info")),
		LogFormat:                 strings.ToLower(env("LOG_FORMAT", "json")),
		DBPath:                    env("APP_DB_PATH", "./data/portal.db"),
		DBMaxOpenConns:            envInt("APP_DB_MAX_OPEN_CONNS", 4),
		DBMaxIdleConns:            envInt("APP_DB_MAX_IDLE_CONNS", 2),
		DBConnMaxLifetime:         time.Duration(envInt("APP_DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		RadiusDBDriver:            strings.ToLower(env("RADIUS_DB_DRIVER", "")),
		RadiusDBDSN:               env("RADIUS_DB_DSN", ""),
		RadiusDBTimeZone:          env("RADIUS_DB_TIMEZONE", "Local"),
		SessionCookieName:         env("SESSION_COOKIE_NAME", "portal_session"),
		OperatorCookieName:        env("OPERATOR_COOKIE_NAME", "portal_operator"),
		SessionIdleMinutes:        envInt("SESSION_IDLE_MINUTES", 30),
		SessionAbsoluteHour:       envInt("SESSION_ABSOLUTE_HOURS", 24),
		CookieSecureMode:          strings.ToLower(env("COOKIE_SECURE_MODE", "")),
		TrustProxy:                envBool("TRUST_PROXY", false),
		CORSAllowedOrigins:        envCSV("CORS_ALLOWED_ORIGINS"),
		PasswordMinLength:         envInt("PASSWORD_MIN_LENGTH", 8),
		PasswordMaxLength:         envInt("PASSWORD_MAX_LENGTH", 128),
		HTTPReadTimeoutSec:        envInt("HTTP_READ_TIMEOUT_SEC", 10),
		HTTPReadHeaderTimeoutSec:  envInt("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		HTTPWriteTimeoutSec:       envInt("HTTP_WRITE_TIMEOUT_SEC", 30),
		HTTPIdleTimeoutSec:        envInt("HTTP_IDLE_TIMEOUT_SEC", 60),
		ShutdownTimeoutSec:        envInt("SHUTDOWN_TIMEOUT_SEC", 15),
		BootstrapOperatorLogin:    env("BOOTSTRAP_OPERATOR_LOGIN", ""),
		BootstrapOperatorPassword: env("BOOTSTRAP_OPERATOR_PASSWORD", ""),
		JobSink:                   strings.ToLower(env("JOB_SINK", "sql")),
		Portal: Portal{
			DefaultRadiusGroup:            env("DEFAULT_RADIUS_GROUP", "users"),
			MobilePhoneRegistrationExpire: envSeconds("MOBILE_PHONE_REGISTRATION_EXPIRE", 3600),
			CreditCardRegistrationExpire:  envSeconds("CREDIT_CARD_REGISTRATION_EXPIRE", 3600),
			LocalTimeRadiusAccounting:     envBool("LOCAL_TIME_RADIUS_ACCOUNTING", false),
			DefaultRadacctResultsPerPage:  envInt("DEFAULT_RADACCT_RESULTS_PER_PAGE", 10),
			IPNSharedSecret:               env("IPN_SHARED_SECRET", ""),
		},
	}

	if cfg.SessionIdleMinutes <= 0 || cfg.SessionAbsoluteHour <= 0 {
		return Config{}, fmt.Errorf("session timeouts must be positive")
	}
	if cfg.DBMaxOpenConns <= 0 || cfg.DBMaxIdleConns < 0 {
		return Config{}, fmt.Errorf("invalid DB pool config")
	}
	if cfg.PasswordMinLength < 6 {
		return Config{}, fmt.Errorf("password min length must be >= 6")
	}
	if cfg.PasswordMaxLength < cfg.PasswordMinLength {
		return Config{}, fmt.Errorf("password max length must be >= min length")
	}
	switch cfg.RadiusDBDriver {
	case "", "mysql", "pgx", "sqlite":
	case "postgres", "postgresql":
		cfg.RadiusDBDriver = "pgx"
	default:
		return Config{}, fmt.Errorf("RADIUS_DB_DRIVER must be one of: mysql, pgx, sqlite")
	}
	if cfg.RadiusDBDriver != "" && strings.TrimSpace(cfg.RadiusDBDSN) == "" {
		return Config{}, fmt.Errorf("RADIUS_DB_DSN is required when RADIUS_DB_DRIVER is set")
	}
	if _, err := cfg.RadiusLocation(); err != nil {
		return Config{}, fmt.Errorf("RADIUS_DB_TIMEZONE: %w", err)
	}
	switch cfg.CookieSecureMode {
	case "":
		// COOKIE_SECURE predates the tri-state mode.
		if envBool("COOKIE_SECURE", false) {
			cfg.CookieSecureMode = "always"
		} else {
			cfg.CookieSecureMode = "never"
		}
	case "always", "never", "auto":
	default:
		return Config{}, fmt.Errorf("COOKIE_SECURE_MODE must be one of: always, never, auto")
	}
	switch cfg.JobSink {
	case "log", "sql":
	default:
		return Config{}, fmt.Errorf("JOB_SINK must be one of: log, sql")
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return Config{}, fmt.Errorf("LOG_FORMAT must be one of: json, text")
	}
	if strings.TrimSpace(cfg.Portal.DefaultRadiusGroup) == "" {
		return Config{}, fmt.Errorf("DEFAULT_RADIUS_GROUP must not be empty")
	}
	if cfg.Portal.DefaultRadacctResultsPerPage <= 0 {
		return Config{}, fmt.Errorf("DEFAULT_RADACCT_RESULTS_PER_PAGE must be positive")
	}
	if cfg.Portal.MobilePhoneRegistrationExpire <= 0 || cfg.Portal.CreditCardRegistrationExpire <= 0 {
		return Config{}, fmt.Errorf("registration expire timeouts must be positive")
	}
	return cfg, nil
}

func (c Config) SessionIdleDuration() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

func (c Config) SessionAbsoluteDuration() time.Duration {
	return time.Duration(c.SessionAbsoluteHour) * time.Hour
}

// RadiusLocation is the zone the accounting table stores its naive
// timestamps in. Calendar-day bounds are computed in it.
func (c Config) RadiusLocation() (*time.Location, error) {
	switch strings.TrimSpace(c.RadiusDBTimeZone) {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	return time.LoadLocation(c.RadiusDBTimeZone)
}

func (c Config) ResolveCookieSecure(r *http.Request) bool {
	switch c.CookieSecureMode {
	case "always":
		return true
	case "auto":
		if r.TLS != nil {
			return true
		}
		return c.TrustProxy && strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
	default:
		return false
	}
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func envSeconds(k string, d int) time.Duration {
	return time.Duration(envInt(k, d)) * time.Second
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

func envCSV(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
