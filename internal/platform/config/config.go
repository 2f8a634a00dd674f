// Package config loads process configuration.
//
// Values come from three layers, later layers winning: built-in defaults, an
// optional YAML file (passed with --config), then environment variables. An
// empty DATABASE_URL or REDIS_URL selects the in-memory implementation of the
// corresponding store.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Environment string        `yaml:"environment"`
	Server      Server        `yaml:"server"`
	Log         Log           `yaml:"log"`
	Database    Database      `yaml:"database"`
	Redis       RedisConfig   `yaml:"redis"`
	Session     Session       `yaml:"session"`
	SMTP        SMTP          `yaml:"smtp"`
	Teams       Teams         `yaml:"teams"`
	Reports     Reports       `yaml:"reports"`
	Webhook     Webhook       `yaml:"webhook"`
	Kafka       Kafka         `yaml:"kafka"`
	Bootstrap   Bootstrap     `yaml:"bootstrap"`
	Shutdown    time.Duration `yaml:"shutdown_timeout"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// TrustedProxies lists CIDRs or addresses whose X-Forwarded-For hops are
	// believed. Empty means the peer address is the client.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// Log selects handler format and level for slog.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Database configures the PostgreSQL connection.
type Database struct {
	URL          string        `yaml:"url"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnMaxLife  time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig configures the Redis client used for sessions.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Session configures login sessions and the session cookie.
type Session struct {
	Secret             string        `yaml:"secret"`
	TTL                time.Duration `yaml:"ttl"`
	CookieSecure       bool          `yaml:"cookie_secure"`
	LoginRatePerMinute int           `yaml:"login_rate_per_minute"`
}

// SMTP configures the outbound email transport.
type SMTP struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
	From string `yaml:"from"`
}

// Teams holds notification recipients.
type Teams struct {
	SalesEmail   string `yaml:"sales_email"`
	SupportEmail string `yaml:"support_email"`
}

// Reports configures reporting targets.
type Reports struct {
	MRRGoal float64 `yaml:"mrr_goal"`
}

// Webhook configures the payment webhook.
type Webhook struct {
	Secret string `yaml:"secret"`
}

// Kafka configures the audit stream. No brokers disables it.
type Kafka struct {
	Brokers    []string `yaml:"brokers"`
	AuditTopic string   `yaml:"audit_topic"`
}

// Bootstrap creates the first administrator when set.
type Bootstrap struct {
	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Environment: "local",
		Server:      Server{Addr: ":8080", ReadTimeout: 15 * time.Second, WriteTimeout: 60 * time.Second},
		Log:         Log{Level: "info", Format: "json"},
		Database:    Database{MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLife: 30 * time.Minute},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Session: Session{
			TTL:                7 * 24 * time.Hour,
			LoginRatePerMinute: 10,
		},
		SMTP: SMTP{
			Host: "localhost",
			Port: 1025,
			From: "Admin <no-reply@local>",
		},
		Teams: Teams{
			SalesEmail:   "sales@example.test",
			SupportEmail: "support@example.test",
		},
		Reports:  Reports{MRRGoal: 5000},
		Kafka:    Kafka{AuditTopic: "gestionale.audit"},
		Shutdown: 10 * time.Second,
	}
}

// Load builds the configuration from defaults, the optional YAML file at path,
// and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run safely.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server address is required")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	if c.Session.Secret == "" && !c.IsLocal() {
		return errors.New("SESSION_SECRET is required outside local and test environments")
	}
	return nil
}

// IsLocal reports whether the process runs on a developer machine or under test.
func (c Config) IsLocal() bool {
	return c.Environment == "local" || c.Environment == "test"
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("ENVIRONMENT", &cfg.Environment)
	str("ADDR", &cfg.Server.Addr)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("DATABASE_URL", &cfg.Database.URL)
	str("REDIS_URL", &cfg.Redis.URL)
	str("SESSION_SECRET", &cfg.Session.Secret)
	str("SMTP_HOST", &cfg.SMTP.Host)
	num("SMTP_PORT", &cfg.SMTP.Port)
	str("SMTP_USER", &cfg.SMTP.User)
	str("SMTP_PASS", &cfg.SMTP.Pass)
	str("MAIL_FROM", &cfg.SMTP.From)
	str("SALES_TEAM_EMAIL", &cfg.Teams.SalesEmail)
	str("SUPPORT_TEAM_EMAIL", &cfg.Teams.SupportEmail)
	str("WEBHOOK_SECRET", &cfg.Webhook.Secret)
	str("AUDIT_TOPIC", &cfg.Kafka.AuditTopic)
	num("LOGIN_RATE_PER_MINUTE", &cfg.Session.LoginRatePerMinute)
	str("BOOTSTRAP_ADMIN_EMAIL", &cfg.Bootstrap.AdminEmail)
	str("BOOTSTRAP_ADMIN_PASSWORD", &cfg.Bootstrap.AdminPassword)

	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	dur("SESSION_TTL", &cfg.Session.TTL)
	dur("HTTP_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	if v, ok := lookup("COOKIE_SECURE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("COOKIE_SECURE: %w", err))
		} else {
			cfg.Session.CookieSecure = b
		}
	}
	if v, ok := lookup("REPORTS_MRR_GOAL"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("REPORTS_MRR_GOAL: %w", err))
		} else {
			cfg.Reports.MRRGoal = f
		}
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v, ok := lookup("TRUSTED_PROXIES"); ok {
		cfg.Server.TrustedProxies = splitList(v)
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
