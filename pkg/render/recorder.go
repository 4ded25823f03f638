package render

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MrCodeEU/facedetect/pkg/camera"
	"github.com/MrCodeEU/facedetect/pkg/logging"
	"gocv.io/x/gocv"
)

const defaultFPS = 25.0

// ErrWriteFailed is returned when OpenCV refuses to write the output file.
var ErrWriteFailed = errors.New("failed to write output")

// Sink receives annotated frames.
type Sink interface {
	Write(frame *camera.Frame) error
	Close() error
}

// Recorder writes annotated frames to disk: still images with IMWrite,
// streams with a VideoWriter opened on the first frame.
type Recorder struct {
	path   string
	kind   camera.Kind
	fps    float64
	writer *gocv.VideoWriter
	frames int
}

// NewRecorder creates a recorder for a source of the given kind. fps <= 0
// falls back to 25.
func NewRecorder(path string, kind camera.Kind, fps float64) *Recorder {
	if fps <= 0 {
		fps = defaultFPS
	}
	return &Recorder{path: path, kind: kind, fps: fps}
}

func (r *Recorder) Write(frame *camera.Frame) error {
	if frame.Empty() {
		return camera.ErrNoFrame
	}

	if r.kind == camera.KindImage {
		if !gocv.IMWrite(r.path, *frame.Mat) {
			return fmt.Errorf("%w: %s", ErrWriteFailed, r.path)
		}
		r.frames++
		return nil
	}

	if r.writer == nil {
		size := frame.Size()
		vw, err := gocv.VideoWriterFile(r.path, codecFor(r.path), r.fps, size.X, size.Y, true)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrWriteFailed, r.path, err)
		}
		r.writer = vw
		logging.Component("render").WithFields(logging.Fields{
			"path":   r.path,
			"width":  size.X,
			"height": size.Y,
			"fps":    r.fps,
		}).Info("Recording annotated video")
	}

	if err := r.writer.Write(*frame.Mat); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	r.frames++
	return nil
}

// Frames returns how many frames were written.
func (r *Recorder) Frames() int {
	return r.frames
}

func (r *Recorder) Close() error {
	if r.writer == nil {
		return nil
	}
	err := r.writer.Close()
	r.writer = nil
	return err
}

func codecFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v", ".mov":
		return "mp4v"
	case ".mkv", ".webm":
		return "VP80"
	default:
		return "MJPG"
	}
}
