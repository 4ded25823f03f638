package render

import (
	"github.com/MrCodeEU/facedetect/pkg/camera"
	"gocv.io/x/gocv"
)

const escKey = 27

// Display shows frames to the user.
type Display interface {
	// Show displays the frame and waits up to delay milliseconds for a key
	// (delay 0 waits forever). It reports whether the user asked to quit.
	Show(frame *camera.Frame, delay int) (quit bool)
	Close() error
}

// Window is a Display backed by an OpenCV highgui window.
type Window struct {
	win     *gocv.Window
	quitKey int
}

// NewWindow opens a window. quitKey is the key code that stops the loop;
// Esc always does.
func NewWindow(title string, quitKey int) *Window {
	return &Window{
		win:     gocv.NewWindow(title),
		quitKey: quitKey,
	}
}

func (w *Window) Show(frame *camera.Frame, delay int) bool {
	if w.win == nil {
		return true
	}
	if !frame.Empty() {
		w.win.IMShow(*frame.Mat)
	}
	key := w.win.WaitKey(delay)
	if !w.win.IsOpen() {
		return true
	}
	return isQuitKey(key, w.quitKey)
}

func (w *Window) Close() error {
	if w.win == nil {
		return nil
	}
	err := w.win.Close()
	w.win = nil
	return err
}

func isQuitKey(key, quitKey int) bool {
	if key < 0 {
		return false
	}
	key &= 0xFF
	return key == escKey || (quitKey > 0 && key == quitKey)
}
