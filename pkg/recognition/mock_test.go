package recognition

import (
	"github.com/Kagami/go-face"
)

type MockFaceEngine struct {
	RecognizeFunc    func(data []byte) ([]face.Face, error)
	RecognizeCNNFunc func(data []byte) ([]face.Face, error)
	CloseFunc        func()

	calls    int
	cnnCalls int
}

func (m *MockFaceEngine) Recognize(data []byte) ([]face.Face, error) {
	m.calls++
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(data)
	}
	return nil, nil
}

func (m *MockFaceEngine) RecognizeCNN(data []byte) ([]face.Face, error) {
	m.cnnCalls++
	if m.RecognizeCNNFunc != nil {
		return m.RecognizeCNNFunc(data)
	}
	return nil, nil
}

func (m *MockFaceEngine) Close() {
	if m.CloseFunc != nil {
		m.CloseFunc()
	}
}

type MockJPEGDetector struct {
	DetectJPEGFunc func(data []byte) ([]Face, error)
}

func (m *MockJPEGDetector) DetectJPEG(data []byte) ([]Face, error) {
	if m.DetectJPEGFunc != nil {
		return m.DetectJPEGFunc(data)
	}
	return nil, nil
}
