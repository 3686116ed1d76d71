package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"
	"github.com/Joa705/raspberrypi-projects/internal/core/ports"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCapture struct {
	mu   sync.Mutex
	subs map[domain.ViewerID]chan domain.VideoUnit
	done chan struct{}
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{
		subs: make(map[domain.ViewerID]chan domain.VideoUnit),
		done: make(chan struct{}),
	}
}

func (f *fakeCapture) Subscribe(id domain.ViewerID) <-chan domain.VideoUnit {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan domain.VideoUnit, 16)
	f.subs[id] = ch
	return ch
}

func (f *fakeCapture) Unsubscribe(id domain.ViewerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[id]; ok {
		close(ch)
		delete(f.subs, id)
	}
}

func (f *fakeCapture) push(unit domain.VideoUnit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- unit
	}
}

func (f *fakeCapture) Done() <-chan struct{}        { return f.done }
func (f *fakeCapture) Err() error                   { return nil }
func (f *fakeCapture) Stop(ctx context.Context) error { return nil }
func (f *fakeCapture) StartedAt() time.Time         { return time.Now() }

type fakeRegistry struct {
	capture   *fakeCapture
	attachErr error
	mu        sync.Mutex
	detached  []domain.ViewerID
}

func (f *fakeRegistry) AttachViewer(ctx context.Context, cameraID domain.CameraID) (*ports.ViewerHandle, error) {
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	return &ports.ViewerHandle{ViewerID: "viewer-1", CameraID: cameraID, Capture: f.capture}, nil
}

func (f *fakeRegistry) DetachViewer(cameraID domain.CameraID, viewerID domain.ViewerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = append(f.detached, viewerID)
}

func (f *fakeRegistry) ForceCleanup(ctx context.Context, cameraID domain.CameraID) {}
func (f *fakeRegistry) Status(cameraID domain.CameraID) *domain.StreamStatus      { return nil }
func (f *fakeRegistry) Statuses() []*domain.StreamStatus                          { return nil }
func (f *fakeRegistry) Shutdown(ctx context.Context)                              {}

func (f *fakeRegistry) detachCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.detached)
}

func TestStream_AttachErrorBeforeUpgrade(t *testing.T) {
	registry := &fakeRegistry{attachErr: domain.ErrCameraNotFound}
	streamer := NewStreamer(registry, zap.NewNop().Sugar())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/cameras/cam-1/ws", nil)

	err := streamer.Stream(w, req, "cam-1")
	assert.ErrorIs(t, err, domain.ErrCameraNotFound)
}

func TestStream_DeliversFromKeyframe(t *testing.T) {
	capture := newFakeCapture()
	registry := &fakeRegistry{capture: capture}
	streamer := NewStreamer(registry, zap.NewNop().Sugar())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = streamer.Stream(w, r, "cam-1")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the server side to subscribe before pushing.
	require.Eventually(t, func() bool {
		capture.mu.Lock()
		defer capture.mu.Unlock()
		return len(capture.subs) == 1
	}, time.Second, 10*time.Millisecond)

	// Non-keyframes before the first IDR are skipped.
	capture.push(domain.VideoUnit{Data: []byte{0x00, 0x00, 0x01, 0x41, 0x01}})
	capture.push(domain.VideoUnit{Data: []byte{0x00, 0x00, 0x01, 0x65, 0x02}, Keyframe: true})
	capture.push(domain.VideoUnit{Data: []byte{0x00, 0x00, 0x01, 0x41, 0x03}})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x65, 0x02}, data)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x41, 0x03}, data)
}

func TestStream_ClientDisconnectDetaches(t *testing.T) {
	capture := newFakeCapture()
	registry := &fakeRegistry{capture: capture}
	streamer := NewStreamer(registry, zap.NewNop().Sugar())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = streamer.Stream(w, r, "cam-1")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	conn.Close()

	assert.Eventually(t, func() bool {
		return registry.detachCount() == 1
	}, time.Second, 10*time.Millisecond)
}
