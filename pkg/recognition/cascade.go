package recognition

import (
	"fmt"
	"os"

	"github.com/MrCodeEU/facedetect/pkg/camera"
	"github.com/MrCodeEU/facedetect/pkg/logging"
	"gocv.io/x/gocv"
)

// CascadeDetector finds face boxes with an OpenCV haar cascade. It yields
// neither landmarks nor descriptors.
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
	loaded     bool
}

// NewCascadeDetector loads a haar cascade XML file.
func NewCascadeDetector(cascadeFile string) (*CascadeDetector, error) {
	if _, err := os.Stat(cascadeFile); err != nil {
		return nil, fmt.Errorf("cascade file: %w", err)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cascadeFile) {
		_ = classifier.Close()
		return nil, fmt.Errorf("error reading cascade file: %s", cascadeFile)
	}

	logging.Component("recognition").WithField("cascade", cascadeFile).Info("Haar cascade loaded")
	return &CascadeDetector{classifier: classifier, loaded: true}, nil
}

// Detect finds face boxes on an equalized grayscale copy of the frame.
func (d *CascadeDetector) Detect(frame *camera.Frame) ([]Face, error) {
	if !d.loaded {
		return nil, ErrModelNotLoaded
	}
	if frame.Empty() {
		return nil, camera.ErrNoFrame
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(*frame.Mat, &gray, gocv.ColorBGRToGray)
	gocv.EqualizeHist(gray, &gray)

	rects := d.classifier.DetectMultiScale(gray)
	faces := make([]Face, len(rects))
	for i, r := range rects {
		faces[i] = Face{Rect: r}
	}
	return faces, nil
}

// Close releases the classifier.
func (d *CascadeDetector) Close() error {
	if !d.loaded {
		return nil
	}
	d.loaded = false
	return d.classifier.Close()
}
