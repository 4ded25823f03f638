package recognition

import (
	"fmt"
	"os"
	"path/filepath"
)

// Model files expected in the model directory.
const (
	ShapePredictor5File  = "shape_predictor_5_face_landmarks.dat"
	ShapePredictor68File = "shape_predictor_68_face_landmarks.dat"
	ResNetModelFile      = "dlib_face_recognition_resnet_model_v1.dat"
	CNNModelFile         = "mmod_human_face_detector.dat"
)

// Landmark layouts a dlib shape predictor can produce.
const (
	Landmarks5  = 5
	Landmarks68 = 68
)

// stageModelDir returns the directory go-face should load from. go-face always
// reads its shape predictor from ShapePredictor5File, so for 68 landmarks a
// temporary directory is staged whose ShapePredictor5File links to the
// 68-point model. cleanup removes the staged directory; go-face reads every
// model when the recognizer is created, so it can run right after that.
func stageModelDir(modelPath string, landmarks int) (dir string, cleanup func(), err error) {
	cleanup = func() {}

	switch landmarks {
	case 0, Landmarks5:
		return modelPath, cleanup, nil
	case Landmarks68:
	default:
		return "", cleanup, fmt.Errorf("unsupported landmark layout %d (must be %d or %d)", landmarks, Landmarks5, Landmarks68)
	}

	abs, err := filepath.Abs(modelPath)
	if err != nil {
		return "", cleanup, err
	}
	predictor := filepath.Join(abs, ShapePredictor68File)
	if _, err := os.Stat(predictor); err != nil {
		return "", cleanup, fmt.Errorf("%w: %s is missing, run download-models", ErrModelNotLoaded, predictor)
	}

	dir, err = os.MkdirTemp("", "facedetect-models-")
	if err != nil {
		return "", cleanup, fmt.Errorf("stage models: %w", err)
	}
	remove := func() { _ = os.RemoveAll(dir) }

	links := map[string]string{
		ShapePredictor5File: predictor,
		ResNetModelFile:     filepath.Join(abs, ResNetModelFile),
		CNNModelFile:        filepath.Join(abs, CNNModelFile),
	}
	for name, target := range links {
		if err := os.Symlink(target, filepath.Join(dir, name)); err != nil {
			remove()
			return "", cleanup, fmt.Errorf("stage models: %w", err)
		}
	}

	return dir, remove, nil
}
