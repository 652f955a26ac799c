package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1500, cfg.Extraction.Iterations)
	assert.Equal(t, 7, cfg.Extraction.Depth)
	assert.Equal(t, []float64{0.6, 0.4, 0.6}, cfg.Extraction.ReductionFactors)
	assert.InDelta(t, 1.5, cfg.Extraction.AboveMedian, 1e-12)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
volume:
  resolution: [0.9, 0.9, 1.5]
  orientation: coronal
extraction:
  iterations: 300
  secondStageErosion: true
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, 0.9, 1.5}, cfg.Volume.Resolution)
	assert.Equal(t, "coronal", cfg.Volume.Orientation)
	assert.Equal(t, 300, cfg.Extraction.Iterations)
	assert.True(t, cfg.Extraction.SecondStageErosion)
	assert.Equal(t, 7, cfg.Extraction.Depth, "unset keys keep their defaults")
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("extraction: [unterminated"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Extraction.Dilation = 2
	cfg.Extraction.CenterPoint = []float64{10, 20, 30}

	require.NoError(t, SaveConfig(cfg, path))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidateRejects(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{"resolution length", func(c *Config) { c.Volume.Resolution = []float64{1, 1} }},
		{"negative resolution", func(c *Config) { c.Volume.Resolution = []float64{1, -1, 1} }},
		{"zero depth", func(c *Config) { c.Extraction.Depth = 0 }},
		{"zero subdivision", func(c *Config) { c.Extraction.Subdivision = 0 }},
		{"negative iterations", func(c *Config) { c.Extraction.Iterations = -1 }},
		{"reduction factors", func(c *Config) { c.Extraction.ReductionFactors = nil }},
		{"center point", func(c *Config) { c.Extraction.CenterPoint = []float64{1} }},
		{"negative dilation", func(c *Config) { c.Extraction.Dilation = -2 }},
		{"logging level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNamedLoggerLevels(t *testing.T) {
	l := NamedLogger("config-test")
	assert.Same(t, l, NamedLogger("config-test"))

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	require.NoError(t, SetLevel("info"))
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())

	assert.Error(t, SetLevel("loud"))
}
