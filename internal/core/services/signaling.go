package services

import (
	"context"
	"errors"
	"time"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"
	"github.com/Joa705/raspberrypi-projects/internal/core/ports"
	"github.com/Joa705/raspberrypi-projects/pkg/tracing"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// SignalingMetrics observes offer/answer exchanges.
type SignalingMetrics interface {
	ObserveHandshake(d time.Duration, ok bool)
}

type signalingService struct {
	registry  ports.StreamRegistry
	connector ports.ViewerConnector
	metrics   SignalingMetrics
	logger    *zap.SugaredLogger
}

func NewSignalingService(
	registry ports.StreamRegistry,
	connector ports.ViewerConnector,
	metrics SignalingMetrics,
	logger *zap.SugaredLogger,
) ports.SignalingService {
	return &signalingService{
		registry:  registry,
		connector: connector,
		metrics:   metrics,
		logger:    logger,
	}
}

// Signal attaches a viewer to the camera's stream session and completes the
// transport handshake. The viewer is counted before the answer is produced,
// so the registry's grace timer can never fire between offer acceptance and
// attach. Any failure after the attach rolls it back with exactly one detach.
func (s *signalingService) Signal(ctx context.Context, cameraID domain.CameraID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	start := time.Now()

	ctx, span := tracing.TraceSignaling(ctx, string(cameraID))
	defer span.End()

	handle, err := s.registry.AttachViewer(ctx, cameraID)
	if err != nil {
		s.observe(start, false)
		tracing.RecordError(ctx, err)
		return webrtc.SessionDescription{}, err
	}

	answer, err := s.connector.Connect(ctx, handle, offer, func() {
		s.registry.DetachViewer(cameraID, handle.ViewerID)
	})
	if err != nil {
		// Handshake failed: the viewer never reached the attached state, so
		// the increment must not remain outstanding.
		s.registry.DetachViewer(cameraID, handle.ViewerID)
		s.observe(start, false)
		tracing.RecordError(ctx, err)
		s.logger.Warnw("viewer handshake failed",
			"camera_id", cameraID,
			"viewer_id", handle.ViewerID,
			"error", err,
		)
		var he *domain.HandshakeError
		if errors.As(err, &he) {
			return webrtc.SessionDescription{}, err
		}
		return webrtc.SessionDescription{}, &domain.HandshakeError{CameraID: cameraID, Cause: err}
	}

	s.observe(start, true)
	s.logger.Infow("viewer handshake completed",
		"camera_id", cameraID,
		"viewer_id", handle.ViewerID,
		"duration", time.Since(start),
	)
	return answer, nil
}

func (s *signalingService) observe(start time.Time, ok bool) {
	if s.metrics != nil {
		s.metrics.ObserveHandshake(time.Since(start), ok)
	}
}
