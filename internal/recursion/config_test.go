package recursion

import (
	"testing"
	"time"

	"github.com/nverra/recurdns/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRecursiveConfig_AppliesDefaults(t *testing.T) {
	cfg, err := FromRecursiveConfig(config.RecursiveConfig{
		Enabled:   true,
		RootHints: []string{"198.41.0.4", "2001:500:200::b"},
	})
	require.NoError(t, err)

	assert.Len(t, cfg.RootHints, 2)
	assert.Equal(t, DefaultQueryTimeout, cfg.QueryTimeout)
	assert.Equal(t, DefaultUDPMaxDatagram, cfg.UDPMaxDatagram)
	assert.Equal(t, DefaultKeepAliveInterval, cfg.KeepAliveInterval)
	assert.Equal(t, DefaultShutdownIdleCycles, cfg.ShutdownIdleCycles)
	assert.Equal(t, DefaultDisableIdleCycles, cfg.DisableIdleCycles)
}

func TestFromRecursiveConfig_ParsesDurations(t *testing.T) {
	cfg, err := FromRecursiveConfig(config.RecursiveConfig{
		QueryTimeout:      "2s",
		KeepAliveInterval: "1m",
	})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.QueryTimeout)
	assert.Equal(t, time.Minute, cfg.KeepAliveInterval)
}

func TestFromRecursiveConfig_InvalidRootHint(t *testing.T) {
	_, err := FromRecursiveConfig(config.RecursiveConfig{RootHints: []string{"not-an-ip"}})
	assert.Error(t, err)
}

func TestFromRecursiveConfig_InvalidDuration(t *testing.T) {
	_, err := FromRecursiveConfig(config.RecursiveConfig{QueryTimeout: "not-a-duration"})
	assert.Error(t, err)
}

func TestConfig_TLSConfigNilUnlessEncryptedTransportEnabled(t *testing.T) {
	c := Config{}
	assert.Nil(t, c.tlsConfig())

	c.EnableTLS = true
	c.TLSServerName = "resolver.example"
	tlsCfg := c.tlsConfig()
	require.NotNil(t, tlsCfg)
	assert.Equal(t, "resolver.example", tlsCfg.ServerName)
}
