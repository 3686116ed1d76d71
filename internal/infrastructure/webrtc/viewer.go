package webrtc

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"
	"github.com/Joa705/raspberrypi-projects/internal/core/ports"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"
)

// Config is the WebRTC transport configuration.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
	FrameRate int
}

// TransportMetrics observes viewer transport events.
type TransportMetrics interface {
	PictureLossIndication(cameraID domain.CameraID)
}

// Transport builds one peer connection per viewer and pumps the camera's H264
// feed into it. It implements ports.ViewerConnector.
type Transport struct {
	api           *webrtc.API
	config        webrtc.Configuration
	frameDuration time.Duration
	metrics       TransportMetrics
	logger        *zap.SugaredLogger
}

func NewTransport(cfg Config, metrics TransportMetrics, logger *zap.SugaredLogger) (*Transport, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max); err != nil {
			return nil, fmt.Errorf("failed to set port range: %w", err)
		}
	}

	iceServers := cfg.ICEServers
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	frameRate := cfg.FrameRate
	if frameRate <= 0 {
		frameRate = 15
	}

	return &Transport{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(interceptorRegistry),
			webrtc.WithSettingEngine(settingEngine),
		),
		config:        webrtc.Configuration{ICEServers: iceServers},
		frameDuration: time.Second / time.Duration(frameRate),
		metrics:       metrics,
		logger:        logger,
	}, nil
}

// Connect completes the offer/answer handshake for an attached viewer and
// starts forwarding video. onClose fires exactly once when the connection
// ends for any reason, including a capture crash feeding through the closed
// feed channel.
func (t *Transport) Connect(ctx context.Context, handle *ports.ViewerHandle, offer webrtc.SessionDescription, onClose func()) (webrtc.SessionDescription, error) {
	pc, err := t.api.NewPeerConnection(t.config)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
		"video",
		fmt.Sprintf("camera-%s", handle.CameraID),
	)
	if err != nil {
		pc.Close()
		return webrtc.SessionDescription{}, err
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		pc.Close()
		return webrtc.SessionDescription{}, err
	}

	var closeOnce sync.Once
	closed := make(chan struct{})
	closeViewer := func() {
		closeOnce.Do(func() {
			close(closed)
			handle.Capture.Unsubscribe(handle.ViewerID)
			if err := pc.Close(); err != nil {
				t.logger.Debugw("peer connection close",
					"viewer_id", handle.ViewerID,
					"error", err,
				)
			}
			t.logger.Infow("viewer closed",
				"camera_id", handle.CameraID,
				"viewer_id", handle.ViewerID,
				"viewer_state", domain.ViewerClosed,
			)
			onClose()
		})
	}

	t.logger.Debugw("viewer negotiating",
		"camera_id", handle.CameraID,
		"viewer_id", handle.ViewerID,
		"viewer_state", domain.ViewerNegotiating,
	)

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.logger.Infow("viewer connection state changed",
			"camera_id", handle.CameraID,
			"viewer_id", handle.ViewerID,
			"state", state,
		)
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			closeViewer()
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return webrtc.SessionDescription{}, &domain.HandshakeError{CameraID: handle.CameraID, Cause: err}
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return webrtc.SessionDescription{}, &domain.HandshakeError{CameraID: handle.CameraID, Cause: err}
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return webrtc.SessionDescription{}, &domain.HandshakeError{CameraID: handle.CameraID, Cause: err}
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		// Client abandoned the handshake; do not leak the half-open viewer.
		pc.Close()
		return webrtc.SessionDescription{}, &domain.HandshakeError{CameraID: handle.CameraID, Cause: ctx.Err()}
	}

	feed := handle.Capture.Subscribe(handle.ViewerID)
	go t.forward(handle, track, feed, closed, closeViewer)
	go t.readRTCP(handle, sender, closed)

	t.logger.Infow("viewer attached",
		"camera_id", handle.CameraID,
		"viewer_id", handle.ViewerID,
		"viewer_state", domain.ViewerAttached,
	)
	return *pc.LocalDescription(), nil
}

type sampleWriter interface {
	WriteSample(media.Sample) error
}

// forward pumps NAL units into the viewer's track, holding delivery until the
// first keyframe so the decoder joins on a clean GOP. The feed channel closing
// means the viewer was unsubscribed or the capture process exited; either way
// the viewer is torn down.
func (t *Transport) forward(handle *ports.ViewerHandle, track sampleWriter, feed <-chan domain.VideoUnit, closed <-chan struct{}, closeViewer func()) {
	synced := false
	for {
		select {
		case unit, ok := <-feed:
			if !ok {
				closeViewer()
				return
			}
			if !synced {
				if !unit.Keyframe {
					continue
				}
				synced = true
			}
			if err := track.WriteSample(media.Sample{
				Data:     unit.Data,
				Duration: t.frameDuration,
			}); err != nil && err != io.ErrClosedPipe {
				t.logger.Warnw("sample write failed",
					"camera_id", handle.CameraID,
					"viewer_id", handle.ViewerID,
					"error", err,
				)
			}
		case <-closed:
			return
		}
	}
}

// readRTCP drains receiver reports from the viewer. PLI is counted; with a
// copy-only upstream there is no encoder to force a keyframe from, the camera
// emits them on its own GOP interval.
func (t *Transport) readRTCP(handle *ports.ViewerHandle, sender *webrtc.RTPSender, closed <-chan struct{}) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-closed:
			return
		default:
		}

		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, packet := range packets {
			if _, ok := packet.(*rtcp.PictureLossIndication); ok {
				if t.metrics != nil {
					t.metrics.PictureLossIndication(handle.CameraID)
				}
				t.logger.Debugw("received PLI",
					"camera_id", handle.CameraID,
					"viewer_id", handle.ViewerID,
				)
			}
		}
	}
}
