package ports

import (
	"context"
	"time"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// CaptureProcess is a running upstream capture for one camera. It is owned
// exclusively by the stream session that started it; nothing else may stop it.
type CaptureProcess interface {
	// Subscribe registers a viewer feed. The returned channel delivers NAL
	// units until Unsubscribe is called or the process exits, at which point
	// it is closed.
	Subscribe(id domain.ViewerID) <-chan domain.VideoUnit
	Unsubscribe(id domain.ViewerID)

	// Done is closed when the process has exited, for any reason. Err reports
	// the exit cause after Done is closed; nil means a requested stop.
	Done() <-chan struct{}
	Err() error

	// Stop terminates the process, escalating to a forced kill after a bounded
	// grace period. It is idempotent and always reaps the subprocess.
	Stop(ctx context.Context) error

	StartedAt() time.Time
}

// CaptureFactory starts capture processes and takes one-shot snapshots.
type CaptureFactory interface {
	Start(ctx context.Context, cfg *domain.CameraConfig) (CaptureProcess, error)
	Snapshot(ctx context.Context, cfg *domain.CameraConfig) ([]byte, error)
}

// ViewerHandle is the result of a committed viewer attach: the viewer is
// already counted against the camera's session and may consume its capture.
type ViewerHandle struct {
	ViewerID domain.ViewerID
	CameraID domain.CameraID
	Capture  CaptureProcess
}

// StreamRegistry owns the camera_id -> stream session mapping and the
// start/stop/viewer-count state machine.
type StreamRegistry interface {
	// AttachViewer get-or-creates the session for cameraID, starting the
	// capture process if absent, and increments the viewer count. At most one
	// capture process is ever started per camera, even under concurrent calls.
	AttachViewer(ctx context.Context, cameraID domain.CameraID) (*ViewerHandle, error)

	// DetachViewer decrements the viewer count exactly once per viewer id.
	// When the count reaches zero a grace-period timer is armed instead of an
	// immediate teardown.
	DetachViewer(cameraID domain.CameraID, viewerID domain.ViewerID)

	// ForceCleanup unconditionally terminates the capture process and removes
	// the session. It always succeeds.
	ForceCleanup(ctx context.Context, cameraID domain.CameraID)

	// Status returns the state of one camera's session, or nil when no
	// session exists.
	Status(cameraID domain.CameraID) *domain.StreamStatus
	Statuses() []*domain.StreamStatus

	// Shutdown terminates every session. The registry rejects new attaches
	// afterwards.
	Shutdown(ctx context.Context)
}

// ViewerConnector completes a media handshake for an already-attached viewer.
// onClose fires exactly once when the transport ends for any reason.
type ViewerConnector interface {
	Connect(ctx context.Context, handle *ViewerHandle, offer webrtc.SessionDescription, onClose func()) (webrtc.SessionDescription, error)
}

// SignalingService is the stateless offer/answer exchange that attaches a
// viewer to a camera stream.
type SignalingService interface {
	Signal(ctx context.Context, cameraID domain.CameraID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
}
