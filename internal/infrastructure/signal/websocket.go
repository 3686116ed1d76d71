package signal

import (
	"net/http"
	"sync"
	"time"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"
	"github.com/Joa705/raspberrypi-projects/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Streamer serves the legacy WebSocket transport: raw Annex-B NAL units
// pushed as binary messages, starting from the next keyframe so decoders can
// join mid-stream.
type Streamer struct {
	registry ports.StreamRegistry
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger
}

func NewStreamer(registry ports.StreamRegistry, logger *zap.SugaredLogger) *Streamer {
	return &Streamer{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Stream attaches a viewer, upgrades the connection and pushes video until
// the client disconnects or the capture stops. Attach errors are returned
// before the upgrade so the handler can answer with a proper status code.
func (s *Streamer) Stream(w http.ResponseWriter, r *http.Request, cameraID domain.CameraID) error {
	handle, err := s.registry.AttachViewer(r.Context(), cameraID)
	if err != nil {
		return err
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.registry.DetachViewer(cameraID, handle.ViewerID)
		return err
	}

	var detachOnce sync.Once
	detach := func() {
		detachOnce.Do(func() {
			handle.Capture.Unsubscribe(handle.ViewerID)
			s.registry.DetachViewer(cameraID, handle.ViewerID)
			conn.Close()
		})
	}
	defer detach()

	s.logger.Infow("websocket viewer connected",
		"camera_id", cameraID,
		"viewer_id", handle.ViewerID,
		"remote_addr", conn.RemoteAddr(),
	)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Reader exists only to process control frames and detect disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	feed := handle.Capture.Subscribe(handle.ViewerID)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	sawKeyframe := false
	for {
		select {
		case unit, ok := <-feed:
			if !ok {
				return nil
			}
			if !sawKeyframe {
				if !unit.Keyframe {
					continue
				}
				sawKeyframe = true
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, unit.Data); err != nil {
				return nil
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-done:
			return nil
		}
	}
}
