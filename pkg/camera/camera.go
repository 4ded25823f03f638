// Package camera provides frame sources for the face detector: a webcam,
// a video file or a single still image, all read through OpenCV (gocv).
package camera

import (
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/MrCodeEU/facedetect/pkg/logging"
	"gocv.io/x/gocv"
)

// Kind identifies what a Source reads from.
type Kind string

const (
	KindWebcam Kind = "webcam"
	KindVideo  Kind = "video"
	KindImage  Kind = "image"
)

// Frame represents a single captured frame.
type Frame struct {
	Mat       *gocv.Mat
	Index     int
	Timestamp time.Time
}

// DeviceInfo describes an opened source.
type DeviceInfo struct {
	Kind       Kind
	Path       string
	Device     int
	Width      int
	Height     int
	FPS        float64
	FrameCount int // 0 when unknown (webcam)
}

// Source yields frames until it is exhausted or fails.
type Source interface {
	Read() (*Frame, error)
	Info() DeviceInfo
	Close() error
}

// ErrCameraNotFound is returned when the camera device cannot be opened.
var ErrCameraNotFound = errors.New("camera device not found")

// ErrSourceNotFound is returned when an image or video file does not exist.
var ErrSourceNotFound = errors.New("source file not found")

// ErrUnreadable is returned when OpenCV cannot decode a file.
var ErrUnreadable = errors.New("source could not be decoded")

// ErrNoFrame is returned when the camera delivers no frame.
var ErrNoFrame = errors.New("failed to capture frame")

// ErrEndOfStream is returned once a video file or still image is exhausted.
var ErrEndOfStream = errors.New("end of stream")

// Empty reports whether the frame carries no picture.
func (f *Frame) Empty() bool {
	return f == nil || f.Mat == nil || f.Mat.Empty()
}

// Size returns the frame dimensions.
func (f *Frame) Size() image.Point {
	if f.Empty() {
		return image.Point{}
	}
	return image.Pt(f.Mat.Cols(), f.Mat.Rows())
}

// Close releases the frame's Mat. Safe on nil frames and frames without a Mat.
func (f *Frame) Close() {
	if f == nil || f.Mat == nil {
		return
	}
	_ = f.Mat.Close()
	f.Mat = nil
}

// EncodeJPEG encodes the frame as JPEG. Frames wider than maxWidth (when
// maxWidth > 0) are downscaled first; scale is the factor applied, so
// coordinates found in the encoded picture divide by scale to map back.
func (f *Frame) EncodeJPEG(maxWidth int) (data []byte, scale float64, err error) {
	if f.Empty() {
		return nil, 0, ErrNoFrame
	}

	src := *f.Mat
	scale = 1.0
	if maxWidth > 0 && src.Cols() > maxWidth {
		scale = float64(maxWidth) / float64(src.Cols())
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(src, &resized, image.Point{}, scale, scale, gocv.InterpolationArea)
		src = resized
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, src)
	if err != nil {
		return nil, 0, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return buf.GetBytes(), scale, nil
}

// captureSource reads from a gocv.VideoCapture (webcam or video file).
type captureSource struct {
	vc    *gocv.VideoCapture
	info  DeviceInfo
	index int
}

// OpenDevice opens a webcam by index. Zero width/height keep the driver default.
func OpenDevice(device, width, height int) (Source, error) {
	vc, err := gocv.VideoCaptureDevice(device)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrCameraNotFound, device, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: device %d", ErrCameraNotFound, device)
	}

	if width > 0 && height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}

	src := &captureSource{
		vc: vc,
		info: DeviceInfo{
			Kind:   KindWebcam,
			Device: device,
		},
	}
	src.fillInfo()

	logging.Component("camera").WithFields(logging.Fields{
		"device": device,
		"width":  src.info.Width,
		"height": src.info.Height,
	}).Info("Opened camera")

	return src, nil
}

// OpenFile opens a video file.
func OpenFile(path string) (Source, error) {
	if err := checkFile(path); err != nil {
		return nil, err
	}

	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnreadable, path)
	}

	src := &captureSource{
		vc: vc,
		info: DeviceInfo{
			Kind: KindVideo,
			Path: path,
		},
	}
	src.fillInfo()

	logging.Component("camera").WithFields(logging.Fields{
		"path":   path,
		"frames": src.info.FrameCount,
		"fps":    src.info.FPS,
	}).Info("Opened video file")

	return src, nil
}

func (s *captureSource) fillInfo() {
	s.info.Width = int(s.vc.Get(gocv.VideoCaptureFrameWidth))
	s.info.Height = int(s.vc.Get(gocv.VideoCaptureFrameHeight))
	s.info.FPS = s.vc.Get(gocv.VideoCaptureFPS)
	if s.info.Kind == KindVideo {
		if n := int(s.vc.Get(gocv.VideoCaptureFrameCount)); n > 0 {
			s.info.FrameCount = n
		}
	}
}

func (s *captureSource) Read() (*Frame, error) {
	mat := gocv.NewMat()
	if ok := s.vc.Read(&mat); !ok || mat.Empty() {
		_ = mat.Close()
		if s.info.Kind == KindVideo {
			return nil, ErrEndOfStream
		}
		return nil, ErrNoFrame
	}

	frame := &Frame{
		Mat:       &mat,
		Index:     s.index,
		Timestamp: time.Now(),
	}
	s.index++
	return frame, nil
}

func (s *captureSource) Info() DeviceInfo {
	return s.info
}

func (s *captureSource) Close() error {
	if s.vc == nil {
		return nil
	}
	err := s.vc.Close()
	s.vc = nil
	return err
}

// imageSource yields a single still image.
type imageSource struct {
	mat  *gocv.Mat
	info DeviceInfo
	done bool
}

// OpenImage loads a still image. The first Read returns it, later reads
// return ErrEndOfStream.
func OpenImage(path string) (Source, error) {
	if err := checkFile(path); err != nil {
		return nil, err
	}

	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		_ = mat.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnreadable, path)
	}

	logging.Component("camera").WithField("path", path).Debug("Loaded still image")

	return &imageSource{
		mat: &mat,
		info: DeviceInfo{
			Kind:       KindImage,
			Path:       path,
			Width:      mat.Cols(),
			Height:     mat.Rows(),
			FrameCount: 1,
		},
	}, nil
}

func (s *imageSource) Read() (*Frame, error) {
	if s.done || s.mat == nil {
		return nil, ErrEndOfStream
	}
	s.done = true

	// Hand out a copy so the caller may close and draw on it freely.
	clone := s.mat.Clone()
	return &Frame{Mat: &clone, Index: 0, Timestamp: time.Now()}, nil
}

func (s *imageSource) Info() DeviceInfo {
	return s.info
}

func (s *imageSource) Close() error {
	if s.mat == nil {
		return nil
	}
	err := s.mat.Close()
	s.mat = nil
	return err
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrUnreadable, path)
	}
	return nil
}
