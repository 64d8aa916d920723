package edgeconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
api_base: https://ingest.example.com
api_key: secret-123
org_id: org-1
store_id: store-1
cameras:
  - camera_id: cam-1
    rtsp: rtsp://192.168.1.10/stream
    capabilities: [entrance, zones]
    geometry:
      screenshot_size: [1920, 1080]
      entrance:
        - [100, 500]
        - [800, 500]
      zones:
        electronics:
          - [0, 0]
          - [400, 0]
          - [400, 400]
          - [0, 400]
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesCamerasAndGeometry(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://ingest.example.com", cfg.APIBase)
	require.Len(t, cfg.Cameras, 1)
	cam := cfg.Cameras[0]
	assert.Equal(t, "cam-1", cam.CameraID)
	assert.Len(t, cam.Capabilities, 2)
	assert.Equal(t, [2]int{1920, 1080}, cam.Geometry.ScreenshotSize)
	assert.Len(t, cam.Geometry.Entrance, 2)
	assert.Len(t, cam.Geometry.Zones["electronics"], 4)
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, 2.0, cfg.BatchSeconds)
	assert.Equal(t, 500, cfg.MaxBatch)
	assert.Equal(t, 0.5, cfg.BackoffBase)
	assert.Equal(t, 60.0, cfg.BackoffMax)
	assert.Equal(t, "./buffer", cfg.BufferDir)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	t.Setenv("API_BASE", "https://override.example.com")
	t.Setenv("MAX_BATCH", "250")

	cfg, err := Load(path)
	require.NoError(t, err)
	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	assert.Equal(t, "https://override.example.com", cfg.APIBase)
	assert.Equal(t, 250, cfg.MaxBatch)
}
