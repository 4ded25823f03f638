package main

import (
	"compress/bzip2"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facedetect/pkg/logging"
	"github.com/MrCodeEU/facedetect/pkg/recognition"
)

// dlibModel is a bzip2 compressed dlib model published on dlib.net.
type dlibModel struct {
	Name string
	URL  string
}

var dlibModels = []dlibModel{
	{
		Name: recognition.ShapePredictor5File,
		URL:  "http://dlib.net/files/shape_predictor_5_face_landmarks.dat.bz2",
	},
	{
		Name: recognition.ShapePredictor68File,
		URL:  "http://dlib.net/files/shape_predictor_68_face_landmarks.dat.bz2",
	},
	{
		Name: recognition.ResNetModelFile,
		URL:  "http://dlib.net/files/dlib_face_recognition_resnet_model_v1.dat.bz2",
	},
	{
		Name: recognition.CNNModelFile,
		URL:  "http://dlib.net/files/mmod_human_face_detector.dat.bz2",
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download-models [dir]",
	Short: "Download the dlib face models",
	Long: `Download and unpack the dlib models used by the hog and cnn backends,
including the 68-point shape predictor face-features are drawn with.
Models already present are skipped. The default directory is detector.model_path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modelDir := cfg.Detector.ModelPath
		if len(args) > 0 {
			modelDir = args[0]
		}
		return downloadModels(modelDir, dlibModels, !mustGetBool(cmd, "quiet"))
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().Bool("quiet", false, "Hide download progress")
}

func downloadModels(modelDir string, models []dlibModel, progress bool) error {
	logging.Infof("Downloading models to: %s", modelDir)

	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	for _, model := range models {
		targetPath := filepath.Join(modelDir, model.Name)
		if _, err := os.Stat(targetPath); err == nil {
			logging.Infof("Model %s already exists, skipping", model.Name)
			continue
		}

		logging.Infof("Downloading %s...", model.Name)
		if err := downloadAndExtract(model.URL, targetPath, progress); err != nil {
			return fmt.Errorf("failed to download %s: %w", model.Name, err)
		}
		logging.Infof("Successfully downloaded %s", model.Name)
	}

	logging.Infof("All models available in %s", modelDir)
	return nil
}

// downloadAndExtract fetches a .bz2 file and unpacks it to targetPath. The
// data is written to a temporary file first so an interrupted download
// never leaves a truncated model behind.
func downloadAndExtract(url, targetPath string, progress bool) error {
	client := &http.Client{
		Timeout: 10 * time.Minute,
	}

	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	partPath := targetPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(partPath) }()

	var body io.Reader = resp.Body
	if progress {
		bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(targetPath))
		defer func() { _ = bar.Finish() }()
		body = io.TeeReader(resp.Body, bar)
	}

	if _, err := io.Copy(out, bzip2.NewReader(body)); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Rename(partPath, targetPath)
}
