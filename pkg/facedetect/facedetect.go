// Package facedetect is the entry point of the library: a FaceDetect is
// configured once and started on a webcam, a video file or a still image.
// Every frame goes through detection, optional recognition against known
// faces, drawing, event publishing, recording and display.
package facedetect

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MrCodeEU/facedetect/pkg/camera"
	"github.com/MrCodeEU/facedetect/pkg/config"
	"github.com/MrCodeEU/facedetect/pkg/events"
	"github.com/MrCodeEU/facedetect/pkg/logging"
	"github.com/MrCodeEU/facedetect/pkg/recognition"
	"github.com/MrCodeEU/facedetect/pkg/render"
	"github.com/MrCodeEU/facedetect/pkg/storage"
)

// Result is what was found in one frame.
type Result struct {
	Frame     int
	Timestamp time.Time
	Faces     []recognition.Face
}

// FaceDetect runs the detection pipeline described by its configuration.
type FaceDetect struct {
	cfg *config.Config

	detector  recognition.Detector
	gallery   *recognition.Gallery
	open      SourceOpener
	display   render.Display
	recorder  render.Sink
	publisher events.Publisher
	handler   FrameHandler
}

// NewFromMap builds a FaceDetect from a configuration mapping such as
// {"mode": "image", "face-features": []string{"face"}}. Missing keys take
// their defaults.
func NewFromMap(settings map[string]interface{}, opts ...Option) (*FaceDetect, error) {
	cfg, err := config.FromMap(settings)
	if err != nil {
		return nil, &Error{Op: OpConfig, Err: err}
	}
	return New(cfg, opts...)
}

// New validates cfg, loads the detector, encodes the known faces and
// connects the event publisher. A nil cfg means the defaults. New keeps its
// own copy of cfg; later changes by the caller have no effect.
func New(cfg *config.Config, opts ...Option) (*FaceDetect, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	} else {
		cfg = cfg.Clone()
	}
	cfg.ExpandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, &Error{Op: OpConfig, Err: err}
	}

	f := &FaceDetect{cfg: cfg, open: OpenSource}
	for _, opt := range opts {
		opt(f)
	}

	if f.detector == nil {
		det, err := newDetector(cfg)
		if err != nil {
			return nil, &Error{Op: OpDetector, Err: err}
		}
		f.detector = det
	}

	if cfg.Method == config.MethodRecognize {
		gallery, err := f.loadKnownFaces()
		if err != nil {
			_ = f.Close()
			return nil, wrap(OpKnownFaces, err)
		}
		f.gallery = gallery
	}

	if f.publisher == nil {
		if cfg.Events.Broker == "" {
			f.publisher = events.Nop{}
		} else {
			pub, err := events.NewMQTTPublisher(cfg.Events)
			if err != nil {
				_ = f.Close()
				return nil, &Error{Op: OpEvents, Err: err}
			}
			f.publisher = pub
		}
	}

	logging.Component("facedetect").WithFields(logging.Fields{
		"mode":     cfg.Mode,
		"method":   cfg.Method,
		"backend":  cfg.Detector.Backend,
		"draw":     cfg.Draw,
		"custom":   cfg.Custom,
		"features": cfg.FaceFeatures,
	}).Debug("FaceDetect ready")

	return f, nil
}

func newDetector(cfg *config.Config) (recognition.Detector, error) {
	d := cfg.Detector
	switch d.Backend {
	case config.BackendHaar:
		return recognition.NewCascadeDetector(d.CascadeFile)
	case config.BackendCNN:
		return recognition.NewDlibDetector(d.ModelPath, cfg.LandmarkPoints(), true, d.MaxWidth)
	default:
		return recognition.NewDlibDetector(d.ModelPath, cfg.LandmarkPoints(), false, d.MaxWidth)
	}
}

// Config returns the effective configuration.
func (f *FaceDetect) Config() *config.Config {
	return f.cfg
}

// KnownNames returns the names faces can be labelled with.
func (f *FaceDetect) KnownNames() []string {
	if f.gallery == nil {
		return nil
	}
	return f.gallery.Names()
}

// Close releases the detector and the publisher, including ones passed
// as options.
func (f *FaceDetect) Close() error {
	var errs []error
	if f.detector != nil {
		errs = append(errs, f.detector.Close())
		f.detector = nil
	}
	if f.publisher != nil {
		errs = append(errs, f.publisher.Close())
		f.publisher = nil
	}
	return errors.Join(errs...)
}

// loadKnownFaces encodes every known face, reusing cached descriptors whose
// source file has not changed.
func (f *FaceDetect) loadKnownFaces() (*recognition.Gallery, error) {
	encoder, ok := f.detector.(recognition.JPEGDetector)
	if !ok {
		return nil, recognition.ErrNoDescriptor
	}

	var cache *storage.FileStorage
	if f.cfg.Cache.Enabled {
		c, err := storage.NewFileStorage(f.cfg.Cache.Dir, f.cfg.Cache.Encryption)
		if err != nil {
			logging.Warnf("Known face cache unavailable: %v", err)
		} else {
			cache = c
		}
	}

	names := make([]string, 0, len(f.cfg.KnownFaces))
	for name := range f.cfg.KnownFaces {
		names = append(names, name)
	}
	sort.Strings(names)

	log := logging.Component("facedetect")
	gallery := recognition.NewGallery(f.cfg.Detector.Tolerance)
	for _, name := range names {
		path := f.cfg.KnownFaces[name]

		sum, err := storage.HashFile(path)
		if err != nil {
			return nil, fmt.Errorf("known face %s: %w", name, err)
		}

		if cache != nil {
			if d, err := cache.Lookup(name, sum); err == nil {
				gallery.Add(name, d)
				log.WithField("name", name).Debug("Using cached descriptor")
				continue
			} else if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrStale) {
				log.WithError(err).WithField("name", name).Warn("Ignoring unreadable cache entry")
			}
		}

		d, err := recognition.EncodeReference(encoder, path)
		if err != nil {
			return nil, fmt.Errorf("known face %s: %w", name, err)
		}
		gallery.Add(name, d)
		log.WithFields(logging.Fields{"name": name, "path": path}).Info("Encoded known face")

		if cache != nil {
			known := storage.KnownFace{
				Name:       name,
				Source:     path,
				SHA256:     sum,
				Descriptor: d,
				EncodedAt:  time.Now(),
			}
			if err := cache.Save(known); err != nil {
				log.WithError(err).WithField("name", name).Warn("Failed to cache descriptor")
			}
		}
	}

	log.WithField("count", gallery.Len()).Info("Known faces loaded")
	return gallery, nil
}

// OpenSource opens the source Start reads from: the configured webcam when
// path is empty, otherwise a still image (image mode) or a video file.
func OpenSource(cfg *config.Config, path string) (camera.Source, error) {
	switch {
	case cfg.Mode == config.ModeImage:
		if path == "" {
			return nil, ErrNoImagePath
		}
		return camera.OpenImage(path)
	case path == "":
		return camera.OpenDevice(cfg.Camera.Device, cfg.Camera.Width, cfg.Camera.Height)
	default:
		return camera.OpenFile(path)
	}
}
