package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, _, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 640, cfg.Encode.TargetWidth)
	assert.InDelta(t, 0.25, cfg.Fusion.MinIoU, 1e-9)
	assert.Equal(t, 1800*time.Millisecond, cfg.Fusion.MaxAge)
	assert.Equal(t, "cover", cfg.Display.Fit)
	assert.Equal(t, 400*time.Millisecond, cfg.Camera.WatchInterval)
}

func TestLoadFileAndClamp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kiosk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
encode:
  target_width: 40
  quality: 3.5
pacing:
  fun_interval: 1ms
  base_interval: 99s
display:
  fit: stretch
`), 0o644))

	cfg, _, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, MinEncodeWidth, cfg.Encode.TargetWidth, "width clamped up")
	assert.Equal(t, 1.0, cfg.Encode.Quality, "quality clamped down")
	assert.Equal(t, MinFunInterval, cfg.Pacing.FunInterval)
	assert.Equal(t, MaxBaseInterval, cfg.Pacing.BaseInterval)
	assert.Equal(t, "cover", cfg.Display.Fit, "unknown fit falls back")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, _, err := Load("/nonexistent/kiosk.yaml")
	assert.Error(t, err)
}

func TestClampFusionDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Clamp()
	assert.InDelta(t, 0.25, cfg.Fusion.MinIoU, 1e-9)
	assert.Equal(t, 1800*time.Millisecond, cfg.Fusion.MaxAge)
	assert.Equal(t, MinEncodeWidth, cfg.Encode.TargetWidth)
}
