package recognition

import (
	"fmt"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/MrCodeEU/facedetect/pkg/camera"
	"github.com/MrCodeEU/facedetect/pkg/logging"
)

// faceEngine is the subset of *face.Recognizer the detector relies on.
type faceEngine interface {
	Recognize(imgData []byte) ([]face.Face, error)
	RecognizeCNN(imgData []byte) ([]face.Face, error)
	Close()
}

// DlibDetector detects faces, landmarks and descriptors with dlib via go-face.
// The HOG detector is the default; the CNN detector is slower and more accurate.
type DlibDetector struct {
	mu       sync.RWMutex
	engine   faceEngine
	useCNN   bool
	maxWidth int
}

// NewDlibDetector loads the dlib models from modelPath. The directory must contain
// dlib_face_recognition_resnet_model_v1.dat, mmod_human_face_detector.dat and the
// shape predictor for the landmark layout: shape_predictor_5_face_landmarks.dat
// for 5 (or 0) landmarks, shape_predictor_68_face_landmarks.dat for 68.
func NewDlibDetector(modelPath string, landmarks int, useCNN bool, maxWidth int) (*DlibDetector, error) {
	logging.Infof("Loading face recognition models from: %s", modelPath)

	dir, cleanup, err := stageModelDir(modelPath, landmarks)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	rec, err := face.NewRecognizer(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}

	logging.Component("recognition").WithFields(logging.Fields{
		"cnn":       useCNN,
		"landmarks": landmarks,
	}).Info("Face recognition models loaded")
	return newDlibDetector(rec, useCNN, maxWidth), nil
}

func newDlibDetector(engine faceEngine, useCNN bool, maxWidth int) *DlibDetector {
	return &DlibDetector{
		engine:   engine,
		useCNN:   useCNN,
		maxWidth: maxWidth,
	}
}

// Detect finds all faces in the frame. Coordinates are in frame pixels even
// when the frame was downscaled for detection.
func (d *DlibDetector) Detect(frame *camera.Frame) ([]Face, error) {
	data, scale, err := frame.EncodeJPEG(d.maxWidth)
	if err != nil {
		return nil, err
	}

	faces, err := d.detect(data)
	if err != nil {
		return nil, err
	}

	for i := range faces {
		faces[i].Rect = scaleRect(faces[i].Rect, scale)
		faces[i].Landmarks = scalePoints(faces[i].Landmarks, scale)
	}
	return faces, nil
}

// DetectJPEG finds all faces in JPEG encoded data.
func (d *DlibDetector) DetectJPEG(data []byte) ([]Face, error) {
	return d.detect(data)
}

func (d *DlibDetector) detect(data []byte) ([]Face, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.engine == nil {
		return nil, ErrModelNotLoaded
	}

	var (
		found []face.Face
		err   error
	)
	if d.useCNN {
		found, err = d.engine.RecognizeCNN(data)
	} else {
		found, err = d.engine.Recognize(data)
	}
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	result := make([]Face, len(found))
	for i, f := range found {
		result[i] = Face{
			Rect:          f.Rectangle,
			Landmarks:     f.Shapes,
			Descriptor:    f.Descriptor,
			HasDescriptor: true,
		}
	}

	logging.Debugf("Detected %d face(s)", len(result))
	return result, nil
}

// Close releases the dlib models.
func (d *DlibDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.engine != nil {
		d.engine.Close()
		d.engine = nil
	}
	return nil
}
