package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/dev/video0", cfg.Capture.Device)
	assert.Equal(t, "yuyv422", cfg.Capture.Format)
	assert.Equal(t, 640, cfg.Capture.Width)
	assert.Equal(t, 480, cfg.Capture.Height)
	assert.Equal(t, 100, cfg.Pipeline.RingCapacity)
	assert.Equal(t, 8080, cfg.Stream.Port)
	assert.Equal(t, 8081, cfg.Control.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		v := viper.New()
		SetDefaults(v)
		var cfg Config
		require.NoError(t, v.Unmarshal(&cfg))
		return &cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"bad format", func(c *Config) { c.Capture.Format = "nv12" }, "capture.format"},
		{"zero width", func(c *Config) { c.Capture.Width = 0 }, "invalid geometry"},
		{"zero fps", func(c *Config) { c.Capture.FPS = 0 }, "capture.fps"},
		{"zero ring", func(c *Config) { c.Pipeline.RingCapacity = 0 }, "ring_capacity"},
		{"quality too high", func(c *Config) { c.Pipeline.JPEGQuality = 101 }, "jpeg_quality"},
		{"bad stream port", func(c *Config) { c.Stream.Port = -1 }, "stream.port"},
		{"port clash", func(c *Config) { c.Control.Port = c.Stream.Port }, "must differ"},
		{"half output geometry", func(c *Config) { c.Pipeline.OutputWidth = 320 }, "set together"},
		{"negative output geometry", func(c *Config) {
			c.Pipeline.OutputWidth = -1
			c.Pipeline.OutputHeight = -1
		}, "invalid output geometry"},
		{"overlay on compressed", func(c *Config) {
			c.Capture.Format = "h264"
			c.Pipeline.Overlay = true
		}, "require yuyv422"},
		{"scaling allowed on yuyv", func(c *Config) {
			c.Pipeline.OutputWidth = 320
			c.Pipeline.OutputHeight = 240
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
