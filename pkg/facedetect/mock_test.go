package facedetect

import (
	"github.com/MrCodeEU/facedetect/pkg/camera"
	"github.com/MrCodeEU/facedetect/pkg/events"
	"github.com/MrCodeEU/facedetect/pkg/recognition"
)

type MockSource struct {
	Frames []*camera.Frame
	Errs   []error // returned, one per Read, before Frames are handed out
	Meta   camera.DeviceInfo

	reads  int
	closed bool
}

func (m *MockSource) Read() (*camera.Frame, error) {
	m.reads++
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		return nil, err
	}
	if len(m.Frames) == 0 {
		return nil, camera.ErrEndOfStream
	}
	f := m.Frames[0]
	m.Frames = m.Frames[1:]
	return f, nil
}

func (m *MockSource) Info() camera.DeviceInfo { return m.Meta }

func (m *MockSource) Close() error {
	m.closed = true
	return nil
}

func frames(n int) []*camera.Frame {
	out := make([]*camera.Frame, n)
	for i := range out {
		out[i] = &camera.Frame{Index: i}
	}
	return out
}

type MockDetector struct {
	DetectFunc     func(frame *camera.Frame) ([]recognition.Face, error)
	DetectJPEGFunc func(data []byte) ([]recognition.Face, error)

	detectCalls int
	jpegCalls   int
	closed      bool
}

func (m *MockDetector) Detect(frame *camera.Frame) ([]recognition.Face, error) {
	m.detectCalls++
	if m.DetectFunc != nil {
		return m.DetectFunc(frame)
	}
	return nil, nil
}

func (m *MockDetector) DetectJPEG(data []byte) ([]recognition.Face, error) {
	m.jpegCalls++
	if m.DetectJPEGFunc != nil {
		return m.DetectJPEGFunc(data)
	}
	return nil, nil
}

func (m *MockDetector) Close() error {
	m.closed = true
	return nil
}

// boxDetector only implements recognition.Detector.
type boxDetector struct{}

func (boxDetector) Detect(*camera.Frame) ([]recognition.Face, error) { return nil, nil }
func (boxDetector) Close() error { return nil }

type MockDisplay struct {
	QuitAfter int            // quit on this Show call, 0 never
	OnShow    func(call int) // called with the 1-based call count

	shows  int
	delays []int
}

func (m *MockDisplay) Show(frame *camera.Frame, delay int) bool {
	m.shows++
	m.delays = append(m.delays, delay)
	if m.OnShow != nil {
		m.OnShow(m.shows)
	}
	return m.QuitAfter > 0 && m.shows >= m.QuitAfter
}

func (m *MockDisplay) Close() error { return nil }

type MockSink struct {
	WriteFunc func(frame *camera.Frame) error

	writes int
}

func (m *MockSink) Write(frame *camera.Frame) error {
	m.writes++
	if m.WriteFunc != nil {
		return m.WriteFunc(frame)
	}
	return nil
}

func (m *MockSink) Close() error { return nil }

type MockPublisher struct {
	PublishFunc func(ev events.Event) error

	events []events.Event
	closed bool
}

func (m *MockPublisher) Publish(ev events.Event) error {
	m.events = append(m.events, ev)
	if m.PublishFunc != nil {
		return m.PublishFunc(ev)
	}
	return nil
}

func (m *MockPublisher) Close() error {
	m.closed = true
	return nil
}
