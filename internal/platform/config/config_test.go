package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/proof/models"
)

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) SetupTest() {
	s.T().Chdir(s.T().TempDir())
}

func (s *ConfigSuite) TestDefaults() {
	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(":8080", cfg.Server.Addr)
	s.Equal(models.NetworkTestnet, cfg.NetworkName())
	s.Equal(15*time.Minute, cfg.Redis.SessionTTL)
	s.Equal("proof.audit", cfg.Kafka.AuditTopic)
	s.Empty(cfg.Database.URL)
	s.Equal("info", cfg.Log.Level)
}

func (s *ConfigSuite) TestEnvironmentOverrides() {
	s.T().Setenv("ADDR", ":9090")
	s.T().Setenv("NETWORK", "mainnet")
	s.T().Setenv("SESSION_TTL", "90s")
	s.T().Setenv("KAFKA_BROKERS", "b1:9092,b2:9092")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(":9090", cfg.Server.Addr)
	s.Equal(models.NetworkMainnet, cfg.NetworkName())
	s.Equal(90*time.Second, cfg.Redis.SessionTTL)
	s.Equal("b1:9092,b2:9092", cfg.Kafka.Brokers)
}

func (s *ConfigSuite) TestEnvFile() {
	dir := s.T().TempDir()
	file := filepath.Join(dir, ".env.test")
	s.Require().NoError(os.WriteFile(file, []byte("LEDGER_URL=http://ledger.local\nLOG_LEVEL=debug\n"), 0o600))
	s.T().Setenv("ENV_FILE", file)
	s.T().Setenv("LEDGER_URL", "")
	s.T().Setenv("LOG_LEVEL", "")
	s.Require().NoError(os.Unsetenv("LEDGER_URL"))
	s.Require().NoError(os.Unsetenv("LOG_LEVEL"))

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal("http://ledger.local", cfg.Collaborators.LedgerURL)
	s.Equal("debug", cfg.Log.Level)
}

func (s *ConfigSuite) TestMissingEnvFileFails() {
	s.T().Setenv("ENV_FILE", filepath.Join(s.T().TempDir(), "missing"))
	_, err := Load()
	s.Error(err)
}

func (s *ConfigSuite) TestValidation() {
	s.Run("unknown network", func() {
		s.T().Setenv("NETWORK", "devnet")
		_, err := Load()
		s.ErrorContains(err, "NETWORK")
	})

	s.Run("regulated mode needs a real signing key", func() {
		s.T().Setenv("REGULATED_MODE", "true")
		_, err := Load()
		s.ErrorContains(err, "JWT_SIGNING_KEY")
	})
}
