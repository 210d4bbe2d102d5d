package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("NetPlayers: 4\nPort: 7000\nLag: 12\nUpdates: 5\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.NetPlayers)
	assert.Equal(t, uint16(7000), cfg.Port)
	assert.Equal(t, int32(10), cfg.Quantized())
	assert.Equal(t, 1, cfg.QuitRetransmits, "unspecified fields keep their default")
}

func TestLoadRejectsInvalidNetPlayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("NetPlayers: 0\nUpdates: 5\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/session.yaml")
	assert.Error(t, err)
}

func TestDefaultIsQuantizable(t *testing.T) {
	cfg := Default()
	assert.Equal(t, cfg.Lag, cfg.Quantized(), "default Lag is already a multiple of Updates")
}
