package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const envPrefix = "EMORADAR_"

type Config struct {
	ListenPort      string        `validate:"required"` // ex: ":8080"
	ShutdownTimeout time.Duration `validate:"gt=0"`     // ex: 5s
	RequestTimeout  time.Duration `validate:"gt=0"`     // per-request handler timeout

	LogLevel  string `validate:"oneof=debug info warn error"`
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Session and policy
	SessionDuration      time.Duration `validate:"gt=0"` // length of a block session (default 25m)
	PolicyFile           string        // YAML policy file, empty = built-in table
	PolicyReloadInterval time.Duration `validate:"gte=0"`

	// Mood history
	Store                string        `validate:"oneof=memory redis bolt"`
	BoltPath             string        `validate:"required_if=Store bolt"`
	HistoryRecent        int           `validate:"gt=0"`
	HistoryRetention     time.Duration `validate:"gte=0"` // 0 = keep forever
	HistoryPruneInterval time.Duration `validate:"gt=0"`

	// Rule engine
	RulesBackend       string        `validate:"oneof=memory redis"`
	RulesCacheSize     int           `validate:"gte=0"`
	RulesRetryAttempts int           `validate:"gte=1"`
	RulesRetryInitial  time.Duration `validate:"gt=0"`
	RulesRetryMaxWait  time.Duration `validate:"gt=0"`

	// Redis, only used when Store or RulesBackend is "redis"
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           `validate:"gte=0"`
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	// HTTP access
	AllowedOrigins   []string `validate:"dive,url"`       // CORS origins of the web UI
	AllowedHosts     []string // optional, restrict access to specific Host headers
	AllowedCIDRS     []string `validate:"dive,cidr|ip"` // optional, restrict admin endpoints to these networks
	TrustProxy       bool     // true => trust X-Forwarded-For headers
	SubmitRateBurst  int      `validate:"gte=1"`
	SubmitRatePerMin int      `validate:"gte=1"`
	SubmitForwards   bool     // true => a submitted mood also drives the block session
}

// UsesRedis reports whether any backend needs a redis connection.
func (c *Config) UsesRedis() bool {
	return c.Store == "redis" || c.RulesBackend == "redis"
}

// Load reads EMORADAR_* environment variables and validates the result.
func Load() (*Config, error) {
	p := &envParser{}
	cfg := &Config{
		// Server settings
		ListenPort:      p.getenv("LISTEN_PORT", ":8080"),
		ShutdownTimeout: p.mustDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:  p.mustDuration("REQUEST_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  strings.ToLower(p.getenv("LOG_LEVEL", "info")),
		PrettyLog: p.mustBool("PRETTY_LOG", false),

		// Session and policy
		SessionDuration:      p.mustDuration("SESSION_DURATION", 25*time.Minute),
		PolicyFile:           p.getenv("POLICY_FILE", ""),
		PolicyReloadInterval: p.mustDuration("POLICY_RELOAD_INTERVAL", time.Hour),

		// Mood history
		Store:                strings.ToLower(p.getenv("STORE", "memory")),
		BoltPath:             p.getenv("BOLT_PATH", ""),
		HistoryRecent:        p.getenvInt("HISTORY_RECENT", 10),
		HistoryRetention:     p.mustDuration("HISTORY_RETENTION", 0),
		HistoryPruneInterval: p.mustDuration("HISTORY_PRUNE_INTERVAL", 24*time.Hour),

		// Rule engine
		RulesBackend:       strings.ToLower(p.getenv("RULES_BACKEND", "memory")),
		RulesCacheSize:     p.getenvInt("RULES_CACHE_SIZE", 1024),
		RulesRetryAttempts: p.getenvInt("RULES_RETRY_ATTEMPTS", 3),
		RulesRetryInitial:  p.mustDuration("RULES_RETRY_INTERVAL", 200*time.Millisecond),
		RulesRetryMaxWait:  p.mustDuration("RULES_RETRY_MAX_WAIT", 2*time.Second),

		// Redis settings
		RedisAddr:             p.getenv("REDIS_ADDR", ""),
		RedisUser:             p.getenv("REDIS_USERNAME", "default"),
		RedisPasswordRequired: p.mustBool("REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         p.getenv("REDIS_PASSWORD", ""),
		RedisDB:               p.getenvInt("REDIS_DB", 0),
		RedisDT:               p.mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               p.mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               p.mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          p.mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      p.mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         p.getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   p.mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    p.mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    p.getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedOrigins:   splitAndTrim(p.getenv("ALLOWED_ORIGINS", "http://localhost:3000,https://radaremo.netlify.app")),
		AllowedHosts:     splitAndTrim(p.getenv("ALLOWED_HOSTS", "")),
		AllowedCIDRS:     parseAllowedIPs(p.getenv("ALLOWED_CIDRS", "")),
		TrustProxy:       p.mustBool("TRUST_PROXY", false),
		SubmitRateBurst:  p.getenvInt("SUBMIT_RATE_BURST", 20),
		SubmitRatePerMin: p.getenvInt("SUBMIT_RATE_PER_MIN", 60),
		SubmitForwards:   p.mustBool("SUBMIT_FORWARDS", true),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg, nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.UsesRedis() {
		if c.RedisAddr == "" {
			return fmt.Errorf("invalid config: %sREDIS_ADDR is required when a redis backend is used", envPrefix)
		}
		if c.RedisPasswordRequired && c.RedisPassword == "" {
			return fmt.Errorf("invalid config: %sREDIS_PASSWORD is required when %sREDIS_PASSWORD_REQUIRED=true", envPrefix, envPrefix)
		}
		if c.RedisConnectTimeout <= 0 || c.RedisRetryInterval <= 0 || c.RedisMaxWait <= 0 || c.RedisPingTimeout <= 0 {
			return errors.New("invalid config: redis timeouts must be > 0")
		}
	}
	if c.RulesRetryMaxWait < c.RulesRetryInitial {
		return fmt.Errorf("invalid config: %sRULES_RETRY_MAX_WAIT must be >= %sRULES_RETRY_INTERVAL", envPrefix, envPrefix)
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	cp := *c
	if cp.RedisPassword != "" {
		cp.RedisPassword = "***REDACTED***"
	}
	if cp.RedisUser != "" {
		cp.RedisUser = "***REDACTED***"
	}
	return cp
}

// envParser reads prefixed variables and collects malformed values instead of
// silently falling back to defaults.
type envParser struct {
	errs []error
}

func (p *envParser) getenv(key, def string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return def
}

func (p *envParser) getenvInt(key string, def int) int {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid integer value for %s%s: %q", envPrefix, key, v))
		return def
	}
	return i
}

func (p *envParser) mustBool(key string, def bool) bool {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid boolean value for %s%s: %q", envPrefix, key, v))
		return def
	}
	return b
}

func (p *envParser) mustDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid duration value for %s%s: %q", envPrefix, key, v))
		return def
	}
	return d
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
