package recognition

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeImage(t *testing.T, name string, w, h int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{200, 100, 50, 255})

	var buf bytes.Buffer
	var err error
	switch filepath.Ext(name) {
	case ".png":
		err = png.Encode(&buf, img)
	default:
		err = jpeg.Encode(&buf, img, nil)
	}
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadReferenceJPEG_ConvertsPNG(t *testing.T) {
	path := writeImage(t, "person1.png", 40, 30)

	data, err := LoadReferenceJPEG(path, 0)
	if err != nil {
		t.Fatalf("LoadReferenceJPEG failed: %v", err)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("result does not decode: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("expected jpeg, got %s", format)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 30 {
		t.Errorf("unexpected size %v", img.Bounds())
	}
}

func TestLoadReferenceJPEG_KeepsSmallJPEG(t *testing.T) {
	path := writeImage(t, "person.jpg", 40, 30)
	raw, _ := os.ReadFile(path)

	data, err := LoadReferenceJPEG(path, 100)
	if err != nil {
		t.Fatalf("LoadReferenceJPEG failed: %v", err)
	}
	if !bytes.Equal(raw, data) {
		t.Error("small JPEG should be passed through unchanged")
	}
}

func TestLoadReferenceJPEG_Downscales(t *testing.T) {
	path := writeImage(t, "tall.png", 50, 200)

	data, err := LoadReferenceJPEG(path, 100)
	if err != nil {
		t.Fatalf("LoadReferenceJPEG failed: %v", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 25 || cfg.Height != 100 {
		t.Errorf("expected 25x100, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestLoadReferenceJPEG_Errors(t *testing.T) {
	if _, err := LoadReferenceJPEG(filepath.Join(t.TempDir(), "missing.png"), 0); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}

	garbage := filepath.Join(t.TempDir(), "garbage.png")
	if err := os.WriteFile(garbage, []byte("nope"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadReferenceJPEG(garbage, 0); err == nil {
		t.Error("expected decode error")
	}
}

func TestEncodeReference(t *testing.T) {
	path := writeImage(t, "person2.png", 20, 20)

	det := &MockJPEGDetector{
		DetectJPEGFunc: func(data []byte) ([]Face, error) {
			return []Face{
				{Rect: image.Rect(0, 0, 5, 5), Descriptor: Descriptor{1}, HasDescriptor: true},
				{Rect: image.Rect(0, 0, 15, 15), Descriptor: Descriptor{2}, HasDescriptor: true},
			}, nil
		},
	}

	d, err := EncodeReference(det, path)
	if err != nil {
		t.Fatalf("EncodeReference failed: %v", err)
	}
	if d[0] != 2 {
		t.Errorf("expected descriptor of the largest face, got %v", d[0])
	}
}

func TestEncodeReference_NoFace(t *testing.T) {
	path := writeImage(t, "empty.png", 20, 20)

	_, err := EncodeReference(&MockJPEGDetector{}, path)
	if !errors.Is(err, ErrNoFaceDetected) {
		t.Errorf("expected ErrNoFaceDetected, got %v", err)
	}
}

func TestEncodeReference_NoDescriptor(t *testing.T) {
	path := writeImage(t, "boxes.png", 20, 20)

	det := &MockJPEGDetector{
		DetectJPEGFunc: func(data []byte) ([]Face, error) {
			return []Face{{Rect: image.Rect(0, 0, 5, 5)}}, nil
		},
	}
	if _, err := EncodeReference(det, path); !errors.Is(err, ErrNoDescriptor) {
		t.Errorf("expected ErrNoDescriptor, got %v", err)
	}
}
