package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facedetect/pkg/camera"
	"github.com/MrCodeEU/facedetect/pkg/config"
	"github.com/MrCodeEU/facedetect/pkg/facedetect"
	"github.com/MrCodeEU/facedetect/pkg/logging"
)

var runCmd = &cobra.Command{
	Use:   "run [path]",
	Short: "Process a webcam stream, a video file or an image",
	Long: `Run the face detector. Without a path the configured webcam is used.

Examples:
  # Boxes around every face on the default webcam
  facedetect run

  # Draw facial features on a still image
  facedetect run --mode image --features face resources/people.jpg

  # Label faces in a video and write the annotated result
  facedetect run --method recognize --known John=john.png,Jane=jane.png \
      --output out.avi --headless --progress clip.mp4`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("mode", "", "Processing mode: image or video")
	runCmd.Flags().String("method", "", "detect or recognize")
	runCmd.Flags().String("backend", "", "Detector backend: hog, cnn or haar")
	runCmd.Flags().Bool("draw", true, "Draw boxes and labels")
	runCmd.Flags().Bool("custom", false, "Do not open a window")
	runCmd.Flags().StringSlice("features", nil, "Facial features to draw (face for all)")
	runCmd.Flags().Int("landmarks", 0, "Landmark layout, 5 or 68 (default 68 with --features, else 5)")
	runCmd.Flags().StringToString("known", nil, "Known faces as name=image pairs")
	runCmd.Flags().String("output", "", "Write the annotated image or video to this file")
	runCmd.Flags().Bool("headless", false, "Never open a window")
	runCmd.Flags().Bool("progress", false, "Show a progress bar for video files")
}

// applyRunFlags copies the flags the user set onto the configuration.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		c.Mode = config.Mode(mustGetString(cmd, "mode"))
	}
	if flags.Changed("method") {
		c.Method = config.Method(mustGetString(cmd, "method"))
	}
	if flags.Changed("backend") {
		c.Detector.Backend = mustGetString(cmd, "backend")
	}
	if flags.Changed("draw") {
		c.Draw = mustGetBool(cmd, "draw")
	}
	if flags.Changed("custom") {
		c.Custom = mustGetBool(cmd, "custom")
	}
	if flags.Changed("features") {
		c.FaceFeatures = mustGetStringSlice(cmd, "features")
	}
	if flags.Changed("landmarks") {
		c.Detector.Landmarks = mustGetInt(cmd, "landmarks")
	}
	if flags.Changed("known") {
		known := mustGetStringToString(cmd, "known")
		if c.KnownFaces == nil {
			c.KnownFaces = make(map[string]string, len(known))
		}
		for name, path := range known {
			c.KnownFaces[name] = path
		}
	}
	if flags.Changed("output") {
		c.Display.Output = mustGetString(cmd, "output")
	}
	if flags.Changed("headless") {
		c.Display.Headless = mustGetBool(cmd, "headless")
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	applyRunFlags(cmd, cfg)

	path := ""
	if len(args) > 0 {
		path = args[0]
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []facedetect.Option
	var bar *progressbar.ProgressBar
	if mustGetBool(cmd, "progress") {
		opts = append(opts,
			facedetect.WithSourceOpener(func(c *config.Config, p string) (camera.Source, error) {
				src, err := facedetect.OpenSource(c, p)
				if err == nil {
					if n := src.Info().FrameCount; n > 1 {
						bar = newFrameBar(n)
					}
				}
				return src, err
			}),
			facedetect.WithFrameHandler(func(*camera.Frame, facedetect.Result) error {
				if bar != nil {
					_ = bar.Add(1)
				}
				return nil
			}),
		)
	}

	fd, err := facedetect.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = fd.Close() }()

	if names := fd.KnownNames(); len(names) > 0 {
		logging.WithFields(logging.Fields{
			"known":     names,
			"tolerance": cfg.Detector.Tolerance,
		}).Info("Labelling known faces")
	}

	err = fd.StartContext(ctx, path)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	return err
}

func newFrameBar(frames int) *progressbar.ProgressBar {
	return progressbar.NewOptions(frames,
		progressbar.OptionSetDescription("Processing frames"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}
