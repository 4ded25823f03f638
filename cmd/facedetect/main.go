// Command facedetect detects and recognizes faces in webcam streams,
// video files and still images.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facedetect/pkg/config"
	"github.com/MrCodeEU/facedetect/pkg/logging"
)

var (
	cfg        *config.Config
	configFile string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "facedetect",
	Short: "Detect and recognize faces in images, videos and webcam streams",
	Long: `facedetect finds faces with dlib (HOG or CNN) or an OpenCV haar cascade,
labels them against a set of known faces, draws boxes and facial features,
and optionally records the annotated output or publishes detections to MQTT.

Configuration is read from --config, /etc/facedetect/facedetect.yaml or
~/.config/facedetect/facedetect.yaml, then FACEDETECT_* environment variables.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	cobra.OnInitialize(initEnv)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func initEnv() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if configFile != "" {
		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}
	} else {
		cfg, err = config.LoadDefault()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
			cfg = config.DefaultConfig()
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	cfg.ExpandPaths()

	logLevel := cfg.Logging.Level
	if debug {
		logLevel = "debug"
	}
	if err := logging.Init(logLevel, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}

	logging.Debugf("facedetect %s starting", Version)
	return nil
}

func main() {
	defer func() { _ = logging.Close() }()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		_ = logging.Close()
		os.Exit(1)
	}
}
