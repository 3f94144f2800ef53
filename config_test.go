package pure3270

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigAppliesDefaults(t *testing.T) {
	cfg, err := NewConfig(Config{Host: "mainframe.example.com"})
	require.NoError(t, err)
	assert.Equal(t, 23, cfg.Port)
	assert.Equal(t, "3278-2", cfg.TerminalModel)
	assert.Equal(t, "cp037", cfg.CodePage)
	assert.Equal(t, int64(30e9), cfg.Timeouts.Connect.Nanoseconds())
}

func TestNewConfigRejectsMissingHost(t *testing.T) {
	_, err := NewConfig(Config{})
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewConfigRejectsUnknownTerminalModel(t *testing.T) {
	_, err := NewConfig(Config{Host: "h", TerminalModel: "VT100"})
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewConfigRejectsUnknownCodePage(t *testing.T) {
	_, err := NewConfig(Config{Host: "h", CodePage: "cp999"})
	require.Error(t, err)
}

func TestNewConfigRejectsContradictoryTLSOptions(t *testing.T) {
	_, err := NewConfig(Config{Host: "h", TLS: TLSConfig{Enabled: false, CABundle: "/etc/ca.pem"}})
	require.Error(t, err)
}

func TestNewConfigRejectsBelowMinTLSVersion(t *testing.T) {
	_, err := NewConfig(Config{Host: "h", TLS: TLSConfig{Enabled: true, Verify: true, MinVersion: tls.VersionTLS10}})
	require.Error(t, err)
}

func TestNewConfigAcceptsValidTLS(t *testing.T) {
	cfg, err := NewConfig(Config{Host: "h", TLS: TLSConfig{Enabled: true, Verify: true}})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.TLS.MinVersion)
}
