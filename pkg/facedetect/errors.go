package facedetect

import "errors"

// Error is the single error type returned by New and Start. Op names the
// step that failed; Err is the cause and can be inspected with errors.Is/As.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "facedetect: " + e.Op
	}
	return "facedetect: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Operations reported in Error.Op.
const (
	OpConfig     = "config"
	OpDetector   = "load detector"
	OpKnownFaces = "load known faces"
	OpEvents     = "connect events"
	OpStart      = "start"
	OpOpenSource = "open source"
	OpRead       = "read frame"
	OpDetect     = "detect"
	OpHandle     = "handle frame"
	OpRecord     = "record"
)

// ErrNoImagePath is returned when image mode is started without a path.
var ErrNoImagePath = errors.New("image mode needs an image path")

// ErrStop can be returned by a FrameHandler to end the session without error.
var ErrStop = errors.New("stop requested")

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Op: op, Err: err}
}
