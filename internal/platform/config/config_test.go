package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestDefaults() {
	cfg := Default()
	s.Equal(":8080", cfg.Server.Addr)
	s.Equal(7*24*time.Hour, cfg.Session.TTL)
	s.Equal("sales@example.test", cfg.Teams.SalesEmail)
	s.Equal("support@example.test", cfg.Teams.SupportEmail)
	s.Equal(1025, cfg.SMTP.Port)
	s.InDelta(5000, cfg.Reports.MRRGoal, 0.001)
}

func (s *ConfigSuite) TestEnvOverrides() {
	env := map[string]string{
		"ADDR":             ":9090",
		"SMTP_PORT":        "2525",
		"SESSION_TTL":      "24h",
		"COOKIE_SECURE":    "true",
		"KAFKA_BROKERS":    "k1:9092, k2:9092",
		"REPORTS_MRR_GOAL": "12000",
		"TRUSTED_PROXIES":  "10.0.0.0/8, 172.16.0.1",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	s.Require().NoError(applyEnv(&cfg, lookup))
	s.Equal(":9090", cfg.Server.Addr)
	s.Equal(2525, cfg.SMTP.Port)
	s.Equal(24*time.Hour, cfg.Session.TTL)
	s.True(cfg.Session.CookieSecure)
	s.Equal([]string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	s.InDelta(12000, cfg.Reports.MRRGoal, 0.001)
	s.Equal([]string{"10.0.0.0/8", "172.16.0.1"}, cfg.Server.TrustedProxies)
}

func (s *ConfigSuite) TestMalformedEnvIsReported() {
	lookup := func(k string) (string, bool) {
		if k == "SMTP_PORT" {
			return "not-a-port", true
		}
		return "", false
	}
	cfg := Default()
	s.Error(applyEnv(&cfg, lookup))
}

func (s *ConfigSuite) TestYAMLFile() {
	dir := s.T().TempDir()
	path := filepath.Join(dir, "config.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(`
environment: test
server:
  addr: ":7070"
teams:
  sales_email: leads@acme.test
session:
  ttl: 48h
`), 0o600))

	cfg, err := Load(path)
	s.Require().NoError(err)
	s.Equal("test", cfg.Environment)
	s.Equal("leads@acme.test", cfg.Teams.SalesEmail)
	s.Equal(48*time.Hour, cfg.Session.TTL)
	s.Equal("support@example.test", cfg.Teams.SupportEmail, "unset keys keep defaults")
}

func (s *ConfigSuite) TestSecretRequiredOutsideLocal() {
	cfg := Default()
	cfg.Environment = "production"
	s.Error(cfg.Validate())

	cfg.Session.Secret = "s3cret"
	s.NoError(cfg.Validate())
}
