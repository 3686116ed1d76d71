package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCameraNotFound = errors.New("camera not found")
	ErrRegistryClosed = errors.New("stream registry is shut down")
	ErrCaptureStopped = errors.New("capture process stopped")
)

// CaptureStartError reports a failed upstream capture process start. The
// session is never created when this is returned.
type CaptureStartError struct {
	CameraID CameraID
	Cause    error
}

func (e *CaptureStartError) Error() string {
	return fmt.Sprintf("capture start failed for camera %s: %v", e.CameraID, e.Cause)
}

func (e *CaptureStartError) Unwrap() error {
	return e.Cause
}

// HandshakeError reports a failed viewer transport negotiation. The viewer
// increment is rolled back before this surfaces to the caller.
type HandshakeError struct {
	CameraID CameraID
	Cause    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake failed for camera %s: %v", e.CameraID, e.Cause)
}

func (e *HandshakeError) Unwrap() error {
	return e.Cause
}
