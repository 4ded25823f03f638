package facedetect

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/facedetect/pkg/camera"
	"github.com/MrCodeEU/facedetect/pkg/config"
	"github.com/MrCodeEU/facedetect/pkg/events"
	"github.com/MrCodeEU/facedetect/pkg/logging"
	"github.com/MrCodeEU/facedetect/pkg/recognition"
	"github.com/MrCodeEU/facedetect/pkg/render"
)

// maxReadFailures is how many webcam frames in a row may fail before Start gives up.
const maxReadFailures = 10

// imagePollDelay is how long, in milliseconds, a still image waits for a key
// between checks for cancellation.
const imagePollDelay = 100

// session holds the state of one Start call.
type session struct {
	id       string
	log      *logrus.Entry
	source   string
	image    bool
	display  render.Display
	recorder render.Sink
	recorded int
	missing  bool
}

// Start processes path, or the default camera when path is empty, until
// the quit key is pressed, the window is closed or the stream ends. In
// image mode the picture is processed once.
func (f *FaceDetect) Start(path string) error {
	return f.StartContext(context.Background(), path)
}

// StartContext is Start with cancellation. A cancelled context ends the
// session without error.
func (f *FaceDetect) StartContext(ctx context.Context, path string) error {
	if f.detector == nil {
		return &Error{Op: OpStart, Err: recognition.ErrModelNotLoaded}
	}
	if f.cfg.Mode == config.ModeImage && path == "" {
		return &Error{Op: OpStart, Err: ErrNoImagePath}
	}

	s := &session{
		id:    uuid.New().String(),
		image: f.cfg.Mode == config.ModeImage,
	}
	s.log = logging.Component("facedetect").WithField("session", s.id)

	src, err := f.open(f.cfg, path)
	if err != nil {
		return &Error{Op: OpOpenSource, Err: err}
	}
	defer func() { _ = src.Close() }()

	info := src.Info()
	s.source = sourceName(info, path)
	s.log.WithFields(logging.Fields{
		"source": s.source,
		"mode":   f.cfg.Mode,
		"method": f.cfg.Method,
	}).Info("Session started")

	if f.cfg.ShowsWindow() {
		if f.display != nil {
			s.display = f.display
		} else {
			win := render.NewWindow(f.cfg.Display.WindowTitle, f.cfg.QuitKeyCode())
			defer func() { _ = win.Close() }()
			s.display = win
		}
	}

	switch {
	case f.recorder != nil:
		s.recorder = f.recorder
	case f.cfg.Display.Output != "":
		rec := render.NewRecorder(f.cfg.Display.Output, info.Kind, info.FPS)
		defer func() {
			if err := rec.Close(); err != nil {
				s.log.WithError(err).Warn("Failed to finalize output")
				return
			}
			if rec.Frames() > 0 {
				s.log.WithFields(logging.Fields{
					"path":   f.cfg.Display.Output,
					"frames": rec.Frames(),
				}).Info("Output written")
			}
		}()
		s.recorder = rec
	}

	processed, err := f.loop(ctx, s, src)
	s.log.WithField("frames", processed).Info("Session ended")
	return err
}

func (f *FaceDetect) loop(ctx context.Context, s *session, src camera.Source) (int, error) {
	processed := 0
	failures := 0

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Session cancelled")
			return processed, nil
		default:
		}

		frame, err := src.Read()
		if err != nil {
			switch {
			case errors.Is(err, camera.ErrEndOfStream):
				return processed, nil
			case errors.Is(err, camera.ErrNoFrame) && failures < maxReadFailures:
				failures++
				s.log.WithError(err).Debug("Dropped frame")
				continue
			default:
				return processed, &Error{Op: OpRead, Err: err}
			}
		}
		failures = 0

		quit, err := f.process(ctx, s, frame)
		frame.Close()
		processed++
		if err != nil {
			return processed, err
		}
		if quit || s.image {
			return processed, nil
		}
	}
}

// process runs the per-frame pipeline and reports whether the user asked to quit.
func (f *FaceDetect) process(ctx context.Context, s *session, frame *camera.Frame) (bool, error) {
	faces, err := f.detector.Detect(frame)
	if err != nil {
		return false, &Error{Op: OpDetect, Err: err}
	}

	if f.gallery != nil {
		f.gallery.Label(faces)
	}

	if f.cfg.WantsLandmarks() && !s.missing {
		for _, face := range faces {
			if len(face.Landmarks) == 0 {
				continue
			}
			n := len(face.Landmarks)
			if missing := recognition.MissingFeatures(n, f.cfg.FaceFeatures); len(missing) > 0 {
				s.log.WithFields(logging.Fields{
					"missing":   missing,
					"available": recognition.AvailableFeatures(n),
				}).Warnf("%d-point landmarks cannot draw every requested feature", n)
			}
			s.missing = true
			break
		}
	}

	render.Annotate(frame.Mat, faces, render.Options{
		Boxes:    f.cfg.Draw,
		Labels:   f.cfg.Method == config.MethodRecognize,
		Features: f.cfg.FaceFeatures,
	})

	res := Result{Frame: frame.Index, Timestamp: frame.Timestamp, Faces: faces}

	if len(faces) > 0 {
		ev := events.NewEvent(s.id, frame.Index, frame.Timestamp, s.source, faces)
		if err := f.publisher.Publish(ev); err != nil {
			s.log.WithError(err).Warn("Failed to publish detection event")
		}
	}

	if f.handler != nil {
		if err := f.handler(frame, res); err != nil {
			if errors.Is(err, ErrStop) {
				return true, nil
			}
			return false, &Error{Op: OpHandle, Err: err}
		}
	}

	if s.recorder != nil {
		if err := s.recorder.Write(frame); err != nil {
			if s.recorded == 0 {
				return false, &Error{Op: OpRecord, Err: err}
			}
			s.log.WithError(err).Warn("Failed to record frame")
		} else {
			s.recorded++
		}
	}

	if s.display != nil {
		if s.image {
			return waitImage(ctx, s.display, frame), nil
		}
		if s.display.Show(frame, 1) {
			return true, nil
		}
	}

	return false, nil
}

// waitImage keeps a still image on screen until the user quits or ctx is done.
func waitImage(ctx context.Context, display render.Display, frame *camera.Frame) bool {
	for {
		if display.Show(frame, imagePollDelay) {
			return true
		}
		select {
		case <-ctx.Done():
			return true
		default:
		}
	}
}

func sourceName(info camera.DeviceInfo, path string) string {
	if info.Kind == camera.KindWebcam || (path == "" && info.Path == "") {
		return fmt.Sprintf("webcam:%d", info.Device)
	}
	if info.Path != "" {
		return info.Path
	}
	return path
}
