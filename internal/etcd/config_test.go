package etcd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) defaults() Config {
	v := viper.New()
	Setup(v, "etcd")
	var cfg Config
	s.Require().NoError(v.UnmarshalKey("etcd", &cfg))
	return cfg
}

func (s *ConfigTestSuite) TestDefaults() {
	cfg := s.defaults()
	s.False(cfg.Enabled)
	s.Equal([]string{"etcd:2379"}, cfg.Endpoints)
	s.Equal(10*time.Second, cfg.PresenceTTL)
	s.Equal("/room-relay/gateways/gw-1", cfg.PresenceKey("gw-1"))
}

func (s *ConfigTestSuite) TestBuildClientConfig() {
	cfg := s.defaults()
	cc, err := cfg.BuildClientConfig()
	s.Require().NoError(err)
	s.Equal(cfg.Endpoints, cc.Endpoints)
	s.Equal(5*time.Second, cc.DialTimeout)
	s.Nil(cc.TLS)
}

func (s *ConfigTestSuite) TestRequiresEndpoints() {
	cfg := s.defaults()
	cfg.Endpoints = nil
	_, err := cfg.BuildClientConfig()
	s.Error(err)
}

func (s *ConfigTestSuite) TestTLSErrors() {
	dir := s.T().TempDir()
	badCA := filepath.Join(dir, "ca.pem")
	s.Require().NoError(os.WriteFile(badCA, []byte("not a cert"), 0o600))

	tests := []struct {
		name string
		tls  TLSConfig
	}{
		{"missing ca file", TLSConfig{Enabled: true, CAFile: filepath.Join(dir, "absent.pem")}},
		{"ca without certs", TLSConfig{Enabled: true, CAFile: badCA}},
		{"cert without key", TLSConfig{Enabled: true, CertFile: filepath.Join(dir, "client.pem")}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			cfg := s.defaults()
			cfg.TLS = tt.tls
			_, err := cfg.BuildClientConfig()
			s.Error(err)
		})
	}
}

func (s *ConfigTestSuite) TestTLSWithoutFiles() {
	cfg := s.defaults()
	cfg.TLS = TLSConfig{Enabled: true, InsecureSkipVerify: true}
	cc, err := cfg.BuildClientConfig()
	s.Require().NoError(err)
	s.Require().NotNil(cc.TLS)
	s.True(cc.TLS.InsecureSkipVerify)
}
