package facedetect

import (
	"github.com/MrCodeEU/facedetect/pkg/camera"
	"github.com/MrCodeEU/facedetect/pkg/config"
	"github.com/MrCodeEU/facedetect/pkg/events"
	"github.com/MrCodeEU/facedetect/pkg/recognition"
	"github.com/MrCodeEU/facedetect/pkg/render"
)

// SourceOpener opens the frame source for a Start call.
type SourceOpener func(cfg *config.Config, path string) (camera.Source, error)

// FrameHandler receives every processed frame. The frame is closed after
// the handler returns; clone the Mat to keep it. Returning ErrStop ends the
// session, any other error aborts it.
type FrameHandler func(frame *camera.Frame, res Result) error

// Option customizes a FaceDetect.
type Option func(*FaceDetect)

// WithDetector replaces the detector built from the configuration.
func WithDetector(d recognition.Detector) Option {
	return func(f *FaceDetect) {
		f.detector = d
	}
}

// WithSourceOpener replaces OpenSource.
func WithSourceOpener(open SourceOpener) Option {
	return func(f *FaceDetect) {
		f.open = open
	}
}

// WithDisplay replaces the OpenCV window. It is only used when the
// configuration shows a window (neither custom nor headless).
func WithDisplay(d render.Display) Option {
	return func(f *FaceDetect) {
		f.display = d
	}
}

// WithRecorder replaces the recorder built from display.output.
func WithRecorder(s render.Sink) Option {
	return func(f *FaceDetect) {
		f.recorder = s
	}
}

// WithPublisher replaces the MQTT publisher built from the events section.
func WithPublisher(p events.Publisher) Option {
	return func(f *FaceDetect) {
		f.publisher = p
	}
}

// WithFrameHandler registers a handler called for every processed frame.
func WithFrameHandler(h FrameHandler) Option {
	return func(f *FaceDetect) {
		f.handler = h
	}
}
