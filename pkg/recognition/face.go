// Package recognition provides face detection, landmark grouping and
// identification against known faces. Detection uses dlib through go-face,
// or an OpenCV haar cascade when only bounding boxes are needed.
package recognition

import (
	"errors"
	"image"

	"github.com/Kagami/go-face"
	"github.com/MrCodeEU/facedetect/pkg/camera"
)

// UnknownLabel is the label given to faces that match no known face.
const UnknownLabel = "Unknown"

// Descriptor is a 128-dimensional face descriptor from dlib.
type Descriptor = face.Descriptor

// Face represents a detected face in a frame.
type Face struct {
	Rect          image.Rectangle
	Landmarks     []image.Point
	Descriptor    Descriptor
	HasDescriptor bool

	// Label and Distance are filled by Gallery.Label.
	Label    string
	Distance float64
}

// Detector finds faces in frames.
type Detector interface {
	Detect(frame *camera.Frame) ([]Face, error)
	Close() error
}

// ErrNoFaceDetected is returned when no face is found in a reference image.
var ErrNoFaceDetected = errors.New("no face detected")

// ErrModelNotLoaded is returned when models are not loaded.
var ErrModelNotLoaded = errors.New("recognition models not loaded")

// ErrNoDescriptor is returned when a detector cannot compute face descriptors.
var ErrNoDescriptor = errors.New("detector does not compute face descriptors")

// Largest returns the index of the face with the largest box, or -1.
func Largest(faces []Face) int {
	best, bestArea := -1, -1
	for i, f := range faces {
		area := f.Rect.Dx() * f.Rect.Dy()
		if area > bestArea {
			best, bestArea = i, area
		}
	}
	return best
}

func scaleRect(r image.Rectangle, scale float64) image.Rectangle {
	if scale == 1.0 || scale <= 0 {
		return r
	}
	return image.Rect(
		int(float64(r.Min.X)/scale),
		int(float64(r.Min.Y)/scale),
		int(float64(r.Max.X)/scale),
		int(float64(r.Max.Y)/scale),
	)
}

func scalePoints(pts []image.Point, scale float64) []image.Point {
	if len(pts) == 0 {
		return nil
	}
	out := make([]image.Point, len(pts))
	for i, p := range pts {
		if scale == 1.0 || scale <= 0 {
			out[i] = p
			continue
		}
		out[i] = image.Pt(int(float64(p.X)/scale), int(float64(p.Y)/scale))
	}
	return out
}
