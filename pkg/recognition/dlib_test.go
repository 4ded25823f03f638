package recognition

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/Kagami/go-face"
	"github.com/MrCodeEU/facedetect/pkg/camera"
	"gocv.io/x/gocv"
)

func newTestFrame(t *testing.T, w, h int) *camera.Frame {
	t.Helper()
	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	frame := &camera.Frame{Mat: &mat}
	t.Cleanup(frame.Close)
	return frame
}

func TestDlibDetector_Detect(t *testing.T) {
	engine := &MockFaceEngine{
		RecognizeFunc: func(data []byte) ([]face.Face, error) {
			if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
				t.Error("engine did not receive JPEG data")
			}
			return []face.Face{{
				Rectangle:  image.Rect(10, 20, 30, 40),
				Descriptor: Descriptor{1, 2, 3},
				Shapes:     []image.Point{{1, 1}, {2, 2}, {3, 3}, {4, 4}, {5, 5}},
			}}, nil
		},
	}

	det := newDlibDetector(engine, false, 0)
	faces, err := det.Detect(newTestFrame(t, 64, 48))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(faces) != 1 {
		t.Fatalf("expected 1 face, got %d", len(faces))
	}

	f := faces[0]
	if f.Rect != image.Rect(10, 20, 30, 40) {
		t.Errorf("unexpected rect %v", f.Rect)
	}
	if !f.HasDescriptor || f.Descriptor[2] != 3 {
		t.Error("descriptor not carried over")
	}
	if len(f.Landmarks) != 5 {
		t.Errorf("expected 5 landmarks, got %d", len(f.Landmarks))
	}
	if engine.calls != 1 || engine.cnnCalls != 0 {
		t.Errorf("expected one HOG call, got hog=%d cnn=%d", engine.calls, engine.cnnCalls)
	}
}

func TestDlibDetector_CNN(t *testing.T) {
	engine := &MockFaceEngine{}
	det := newDlibDetector(engine, true, 0)

	if _, err := det.Detect(newTestFrame(t, 32, 32)); err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if engine.cnnCalls != 1 || engine.calls != 0 {
		t.Errorf("expected one CNN call, got hog=%d cnn=%d", engine.calls, engine.cnnCalls)
	}
}

func TestDlibDetector_ScalesBack(t *testing.T) {
	engine := &MockFaceEngine{
		RecognizeFunc: func(data []byte) ([]face.Face, error) {
			return []face.Face{{
				Rectangle: image.Rect(10, 10, 20, 20),
				Shapes:    []image.Point{{15, 15}},
			}}, nil
		},
	}

	// 400 wide frame limited to 100: coordinates come back multiplied by 4.
	det := newDlibDetector(engine, false, 100)
	faces, err := det.Detect(newTestFrame(t, 400, 200))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if faces[0].Rect != image.Rect(40, 40, 80, 80) {
		t.Errorf("expected rect scaled to (40,40)-(80,80), got %v", faces[0].Rect)
	}
	if faces[0].Landmarks[0] != image.Pt(60, 60) {
		t.Errorf("expected landmark scaled to (60,60), got %v", faces[0].Landmarks[0])
	}
}

func TestDlibDetector_EngineError(t *testing.T) {
	boom := errors.New("boom")
	engine := &MockFaceEngine{
		RecognizeFunc: func(data []byte) ([]face.Face, error) { return nil, boom },
	}

	det := newDlibDetector(engine, false, 0)
	if _, err := det.DetectJPEG([]byte{0xFF, 0xD8}); !errors.Is(err, boom) {
		t.Errorf("expected wrapped engine error, got %v", err)
	}
}

func TestDlibDetector_EmptyFrame(t *testing.T) {
	det := newDlibDetector(&MockFaceEngine{}, false, 0)
	if _, err := det.Detect(&camera.Frame{}); !errors.Is(err, camera.ErrNoFrame) {
		t.Errorf("expected ErrNoFrame, got %v", err)
	}
}

func TestDlibDetector_Close(t *testing.T) {
	closed := 0
	engine := &MockFaceEngine{CloseFunc: func() { closed++ }}
	det := newDlibDetector(engine, false, 0)

	if err := det.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := det.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if closed != 1 {
		t.Errorf("expected engine closed once, got %d", closed)
	}

	if _, err := det.DetectJPEG([]byte{0xFF, 0xD8}); !errors.Is(err, ErrModelNotLoaded) {
		t.Errorf("expected ErrModelNotLoaded after Close, got %v", err)
	}
}

func TestNewDlibDetector_MissingModels(t *testing.T) {
	if _, err := NewDlibDetector(t.TempDir(), Landmarks5, false, 0); err == nil {
		t.Error("expected error when models are missing")
	}
	if _, err := NewDlibDetector(t.TempDir(), Landmarks68, false, 0); !errors.Is(err, ErrModelNotLoaded) {
		t.Errorf("expected ErrModelNotLoaded without the 68-point model, got %v", err)
	}
}

func TestStageModelDir(t *testing.T) {
	t.Run("5 landmarks use the model dir", func(t *testing.T) {
		modelPath := t.TempDir()
		for _, n := range []int{0, Landmarks5} {
			dir, cleanup, err := stageModelDir(modelPath, n)
			if err != nil {
				t.Fatalf("stageModelDir(%d) failed: %v", n, err)
			}
			cleanup()
			if dir != modelPath {
				t.Errorf("expected %s, got %s", modelPath, dir)
			}
		}
	})

	t.Run("68 landmarks replace the predictor", func(t *testing.T) {
		modelPath := t.TempDir()
		predictor := filepath.Join(modelPath, ShapePredictor68File)
		if err := os.WriteFile(predictor, []byte("68"), 0644); err != nil {
			t.Fatal(err)
		}

		dir, cleanup, err := stageModelDir(modelPath, Landmarks68)
		if err != nil {
			t.Fatalf("stageModelDir failed: %v", err)
		}
		if dir == modelPath {
			t.Fatal("expected a staged directory")
		}

		data, err := os.ReadFile(filepath.Join(dir, ShapePredictor5File))
		if err != nil {
			t.Fatalf("staged predictor unreadable: %v", err)
		}
		if string(data) != "68" {
			t.Errorf("staged predictor should be the 68-point model, got %q", data)
		}
		for _, name := range []string{ResNetModelFile, CNNModelFile} {
			target, err := os.Readlink(filepath.Join(dir, name))
			if err != nil {
				t.Fatalf("%s not staged: %v", name, err)
			}
			if target != filepath.Join(modelPath, name) {
				t.Errorf("%s links to %s", name, target)
			}
		}

		cleanup()
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Errorf("staged directory should be removed, got %v", err)
		}
	})

	t.Run("68 landmarks need the model", func(t *testing.T) {
		if _, _, err := stageModelDir(t.TempDir(), Landmarks68); !errors.Is(err, ErrModelNotLoaded) {
			t.Errorf("expected ErrModelNotLoaded, got %v", err)
		}
	})

	t.Run("unsupported layout", func(t *testing.T) {
		if _, _, err := stageModelDir(t.TempDir(), 7); err == nil {
			t.Error("expected error for 7 landmarks")
		}
	})
}

func TestLargest(t *testing.T) {
	faces := []Face{
		{Rect: image.Rect(0, 0, 10, 10)},
		{Rect: image.Rect(0, 0, 30, 30)},
		{Rect: image.Rect(0, 0, 20, 20)},
	}
	if got := Largest(faces); got != 1 {
		t.Errorf("expected index 1, got %d", got)
	}
	if got := Largest(nil); got != -1 {
		t.Errorf("expected -1 for no faces, got %d", got)
	}
}
