// Package config provides configuration management for framewire using
// Viper. It supports configuration from files, environment variables,
// and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultStreamPort        = 8080
	defaultControlPort       = 8081
	defaultCaptureDevice     = "/dev/video0"
	defaultCaptureFormat     = "yuyv422"
	defaultCaptureWidth      = 640
	defaultCaptureHeight     = 480
	defaultCaptureFPS        = 30
	defaultRingCapacity      = 100
	defaultStreamBufferBytes = 8 * 1024 * 1024
	defaultStreamMaxChunks   = 512
	defaultClientTimeout     = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultJPEGQuality       = 85
)

// Config holds all configuration for the application.
type Config struct {
	Capture   CaptureConfig   `mapstructure:"capture"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Control   ControlConfig   `mapstructure:"control"`
	Recording RecordingConfig `mapstructure:"recording"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CaptureConfig holds capture device configuration.
type CaptureConfig struct {
	// Device is the V4L2 device path, or "test" for the synthetic
	// test-pattern source.
	Device string `mapstructure:"device"`
	Format string `mapstructure:"format"` // yuyv422, mjpeg, h264
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	FPS    int    `mapstructure:"fps"`
}

// PipelineConfig holds pipeline buffering and processing configuration.
type PipelineConfig struct {
	// RingCapacity bounds ring-buffered holders for encoded frames.
	RingCapacity int `mapstructure:"ring_capacity"`
	// JPEGQuality is the MJPEG encoder quality (1-100).
	JPEGQuality int `mapstructure:"jpeg_quality"`
	// Overlay draws a rectangle outline onto raw frames before
	// encoding. Only valid with the yuyv422 capture format.
	Overlay bool `mapstructure:"overlay"`
	// OutputWidth and OutputHeight rescale raw frames before encoding.
	// Zero keeps the capture geometry. Only valid with yuyv422.
	OutputWidth  int `mapstructure:"output_width"`
	OutputHeight int `mapstructure:"output_height"`
}

// StreamConfig holds the HTTP streaming server configuration.
type StreamConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// MaxBufferSize bounds the per-stream broadcast buffer. Supports
	// human-readable values like "8MB" or raw byte counts.
	MaxBufferSize ByteSize `mapstructure:"max_buffer_size"`
	// MaxChunks bounds the number of buffered chunks per stream.
	MaxChunks int `mapstructure:"max_chunks"`
	// ClientTimeout evicts clients that stopped reading.
	ClientTimeout   time.Duration `mapstructure:"client_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ControlConfig holds the HTTP command receiver configuration.
type ControlConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// RecordingConfig holds file recording configuration.
type RecordingConfig struct {
	// OutputDir restricts recording targets; an empty value allows
	// absolute paths as given in commands.
	OutputDir string `mapstructure:"output_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from the given file (optional), environment
// variables with the FRAMEWIRE_ prefix, and defaults, in ascending
// priority order.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/framewire")
		v.SetConfigType("yaml")
		v.SetConfigName("framewire")
	}

	v.SetEnvPrefix("FRAMEWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("capture.device", defaultCaptureDevice)
	v.SetDefault("capture.format", defaultCaptureFormat)
	v.SetDefault("capture.width", defaultCaptureWidth)
	v.SetDefault("capture.height", defaultCaptureHeight)
	v.SetDefault("capture.fps", defaultCaptureFPS)

	v.SetDefault("pipeline.ring_capacity", defaultRingCapacity)
	v.SetDefault("pipeline.jpeg_quality", defaultJPEGQuality)
	v.SetDefault("pipeline.overlay", false)
	v.SetDefault("pipeline.output_width", 0)
	v.SetDefault("pipeline.output_height", 0)

	v.SetDefault("stream.host", "0.0.0.0")
	v.SetDefault("stream.port", defaultStreamPort)
	v.SetDefault("stream.max_buffer_size", defaultStreamBufferBytes)
	v.SetDefault("stream.max_chunks", defaultStreamMaxChunks)
	v.SetDefault("stream.client_timeout", defaultClientTimeout)
	v.SetDefault("stream.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("control.host", "0.0.0.0")
	v.SetDefault("control.port", defaultControlPort)

	v.SetDefault("recording.output_dir", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks configuration invariants that viper cannot express.
func (c *Config) Validate() error {
	switch c.Capture.Format {
	case "yuyv422", "mjpeg", "h264":
	default:
		return fmt.Errorf("capture.format: unsupported format %q", c.Capture.Format)
	}
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
		return fmt.Errorf("capture: invalid geometry %dx%d", c.Capture.Width, c.Capture.Height)
	}
	if c.Capture.FPS <= 0 {
		return fmt.Errorf("capture.fps: must be positive, got %d", c.Capture.FPS)
	}
	if c.Pipeline.RingCapacity <= 0 {
		return fmt.Errorf("pipeline.ring_capacity: must be positive, got %d", c.Pipeline.RingCapacity)
	}
	if c.Pipeline.JPEGQuality < 1 || c.Pipeline.JPEGQuality > 100 {
		return fmt.Errorf("pipeline.jpeg_quality: must be 1-100, got %d", c.Pipeline.JPEGQuality)
	}
	if (c.Pipeline.OutputWidth == 0) != (c.Pipeline.OutputHeight == 0) {
		return errors.New("pipeline: output_width and output_height must be set together")
	}
	if c.Pipeline.OutputWidth < 0 || c.Pipeline.OutputHeight < 0 {
		return fmt.Errorf("pipeline: invalid output geometry %dx%d",
			c.Pipeline.OutputWidth, c.Pipeline.OutputHeight)
	}
	if c.Capture.Format != "yuyv422" && (c.Pipeline.Overlay || c.Pipeline.OutputWidth != 0) {
		return fmt.Errorf("pipeline: overlay and output scaling require yuyv422 capture, got %q",
			c.Capture.Format)
	}
	if c.Stream.Port <= 0 || c.Stream.Port > 65535 {
		return fmt.Errorf("stream.port: invalid port %d", c.Stream.Port)
	}
	if c.Control.Port <= 0 || c.Control.Port > 65535 {
		return fmt.Errorf("control.port: invalid port %d", c.Control.Port)
	}
	if c.Stream.Port == c.Control.Port {
		return fmt.Errorf("stream.port and control.port must differ, both are %d", c.Stream.Port)
	}
	return nil
}
