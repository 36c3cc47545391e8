package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/framewire/internal/config"
	"github.com/jmylchreest/framewire/internal/daemon"
	"github.com/jmylchreest/framewire/internal/observability"
	"github.com/jmylchreest/framewire/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the capture pipeline and HTTP servers",
	Long: `Start the capture pipeline.

The daemon serves:
- GET /stream.ts or /stream.mjpeg on the stream port
- GET /stats on the stream port
- POST /commands on the control port (startRecording, stopRecording, stop)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("device", "/dev/video0", "V4L2 device path, or \"test\" for a synthetic pattern")
	serveCmd.Flags().String("format", "yuyv422", "capture pixel format (yuyv422, mjpeg, h264)")
	serveCmd.Flags().Int("width", 640, "capture width")
	serveCmd.Flags().Int("height", 480, "capture height")
	serveCmd.Flags().Int("fps", 30, "capture frame rate")
	serveCmd.Flags().Int("stream-port", 8080, "HTTP stream port")
	serveCmd.Flags().Int("control-port", 8081, "HTTP control port")
	serveCmd.Flags().String("output-dir", "", "directory for recording files")
	serveCmd.Flags().Bool("overlay", false, "draw a rectangle overlay on raw frames")
	serveCmd.Flags().Int("output-width", 0, "rescale raw frames to this width before encoding")
	serveCmd.Flags().Int("output-height", 0, "rescale raw frames to this height before encoding")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyServeFlags(cmd.Flags(), cmd.Root().PersistentFlags(), cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)

	logger.Info("starting framewire",
		slog.String("version", version.Short()),
		slog.String("commit", version.Commit),
	)

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := d.Run(context.Background()); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	return nil
}

// applyServeFlags overrides config values with flags the user actually
// passed.
func applyServeFlags(flags, root *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("device") {
		cfg.Capture.Device, _ = flags.GetString("device")
	}
	if flags.Changed("format") {
		cfg.Capture.Format, _ = flags.GetString("format")
	}
	if flags.Changed("width") {
		cfg.Capture.Width, _ = flags.GetInt("width")
	}
	if flags.Changed("height") {
		cfg.Capture.Height, _ = flags.GetInt("height")
	}
	if flags.Changed("fps") {
		cfg.Capture.FPS, _ = flags.GetInt("fps")
	}
	if flags.Changed("stream-port") {
		cfg.Stream.Port, _ = flags.GetInt("stream-port")
	}
	if flags.Changed("control-port") {
		cfg.Control.Port, _ = flags.GetInt("control-port")
	}
	if flags.Changed("output-dir") {
		cfg.Recording.OutputDir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("overlay") {
		cfg.Pipeline.Overlay, _ = flags.GetBool("overlay")
	}
	if flags.Changed("output-width") {
		cfg.Pipeline.OutputWidth, _ = flags.GetInt("output-width")
	}
	if flags.Changed("output-height") {
		cfg.Pipeline.OutputHeight, _ = flags.GetInt("output-height")
	}

	if root.Changed("log-level") {
		cfg.Logging.Level, _ = root.GetString("log-level")
	}
	if root.Changed("log-format") {
		cfg.Logging.Format, _ = root.GetString("log-format")
	}
}
