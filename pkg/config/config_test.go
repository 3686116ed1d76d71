package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Stream.GracePeriod)
	assert.Equal(t, 10*time.Second, cfg.Stream.StartTimeout)
	assert.Equal(t, "tcp", cfg.Capture.RTSPTransport)
	assert.Equal(t, 554, cfg.Capture.RTSPPort)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  address: ":9000"
stream:
  grace_period: 5s
cameras:
  - id: "cam-1"
    name: "Test"
    host: "10.0.0.5"
    username: "user"
    password: "pass"
    stream_quality: "stream2"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, 5*time.Second, cfg.Stream.GracePeriod)
	// Untouched sections keep defaults.
	assert.Equal(t, 10*time.Second, cfg.Stream.StartTimeout)

	require.Len(t, cfg.Cameras, 1)
	assert.Equal(t, "cam-1", cfg.Cameras[0].ID)
	assert.Equal(t, "stream2", cfg.Cameras[0].StreamQuality)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
capture:
  rtsp_transport: "carrier-pigeon"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_DuplicateCameraIDs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cameras = []CameraEntry{
		{ID: "cam-1", Host: "10.0.0.5"},
		{ID: "cam-1", Host: "10.0.0.6"},
	}
	assert.Error(t, cfg.Validate())
}

func TestValidate_PortRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WebRTC.PortRange.Min = 50000
	cfg.WebRTC.PortRange.Max = 40000
	assert.Error(t, cfg.Validate())

	cfg.WebRTC.PortRange.Max = 60000
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAMHUB_SERVER_ADDRESS", ":7070")
	t.Setenv("CAMHUB_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
