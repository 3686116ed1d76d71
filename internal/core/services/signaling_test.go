package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"
	"github.com/Joa705/raspberrypi-projects/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubRegistry struct {
	attachErr error
	attaches  int32
	detaches  int32
	handle    *ports.ViewerHandle
}

func (s *stubRegistry) AttachViewer(ctx context.Context, cameraID domain.CameraID) (*ports.ViewerHandle, error) {
	atomic.AddInt32(&s.attaches, 1)
	if s.attachErr != nil {
		return nil, s.attachErr
	}
	return s.handle, nil
}

func (s *stubRegistry) DetachViewer(cameraID domain.CameraID, viewerID domain.ViewerID) {
	atomic.AddInt32(&s.detaches, 1)
}

func (s *stubRegistry) ForceCleanup(ctx context.Context, cameraID domain.CameraID) {}

func (s *stubRegistry) Status(cameraID domain.CameraID) *domain.StreamStatus { return nil }

func (s *stubRegistry) Statuses() []*domain.StreamStatus { return nil }

func (s *stubRegistry) Shutdown(ctx context.Context) {}

type stubConnector struct {
	answer  webrtc.SessionDescription
	err     error
	onClose func()
	calls   int32
}

func (s *stubConnector) Connect(ctx context.Context, handle *ports.ViewerHandle, offer webrtc.SessionDescription, onClose func()) (webrtc.SessionDescription, error) {
	atomic.AddInt32(&s.calls, 1)
	s.onClose = onClose
	if s.err != nil {
		return webrtc.SessionDescription{}, s.err
	}
	return s.answer, nil
}

func testOffer() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
}

func TestSignal_AttachesBeforeConnect(t *testing.T) {
	registry := &stubRegistry{
		handle: &ports.ViewerHandle{ViewerID: "v1", CameraID: "cam-1", Capture: newFakeCapture()},
	}
	connector := &stubConnector{
		answer: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"},
	}
	svc := NewSignalingService(registry, connector, nil, zap.NewNop().Sugar())

	answer, err := svc.Signal(context.Background(), "cam-1", testOffer())
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.Equal(t, int32(1), registry.attaches)
	assert.Equal(t, int32(0), registry.detaches)

	// Transport close detaches exactly once through the callback.
	connector.onClose()
	assert.Equal(t, int32(1), registry.detaches)
}

func TestSignal_HandshakeFailureRollsBackAttach(t *testing.T) {
	registry := &stubRegistry{
		handle: &ports.ViewerHandle{ViewerID: "v1", CameraID: "cam-1", Capture: newFakeCapture()},
	}
	connector := &stubConnector{err: errors.New("bad sdp")}
	svc := NewSignalingService(registry, connector, nil, zap.NewNop().Sugar())

	_, err := svc.Signal(context.Background(), "cam-1", testOffer())
	require.Error(t, err)

	var handshakeErr *domain.HandshakeError
	require.ErrorAs(t, err, &handshakeErr)
	assert.Equal(t, domain.CameraID("cam-1"), handshakeErr.CameraID)

	assert.Equal(t, int32(1), registry.attaches)
	assert.Equal(t, int32(1), registry.detaches)
}

func TestSignal_AttachFailurePropagates(t *testing.T) {
	registry := &stubRegistry{attachErr: domain.ErrCameraNotFound}
	connector := &stubConnector{}
	svc := NewSignalingService(registry, connector, nil, zap.NewNop().Sugar())

	_, err := svc.Signal(context.Background(), "cam-1", testOffer())
	assert.ErrorIs(t, err, domain.ErrCameraNotFound)
	assert.Equal(t, int32(0), connector.calls)
	assert.Equal(t, int32(0), registry.detaches)
}

func TestSignal_PreservesTypedHandshakeError(t *testing.T) {
	inner := &domain.HandshakeError{CameraID: "cam-1", Cause: errors.New("ice failed")}
	registry := &stubRegistry{
		handle: &ports.ViewerHandle{ViewerID: "v1", CameraID: "cam-1", Capture: newFakeCapture()},
	}
	connector := &stubConnector{err: inner}
	svc := NewSignalingService(registry, connector, nil, zap.NewNop().Sugar())

	_, err := svc.Signal(context.Background(), "cam-1", testOffer())
	var handshakeErr *domain.HandshakeError
	require.ErrorAs(t, err, &handshakeErr)
	// Not double-wrapped.
	assert.Equal(t, inner, handshakeErr)
}
