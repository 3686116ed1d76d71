package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"
	"github.com/Joa705/raspberrypi-projects/internal/core/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultGracePeriod  = 30 * time.Second
	DefaultStartTimeout = 10 * time.Second
	DefaultStopTimeout  = 5 * time.Second
)

// RegistryMetrics receives lifecycle events from the registry. The Prometheus
// collector implements it; tests use NopMetrics.
type RegistryMetrics interface {
	StreamStarted(cameraID domain.CameraID)
	StreamStopped(cameraID domain.CameraID)
	StreamCrashed(cameraID domain.CameraID)
	ViewerAttached(cameraID domain.CameraID)
	ViewerDetached(cameraID domain.CameraID)
	CaptureStartFailed(cameraID domain.CameraID)
	CleanupForced(cameraID domain.CameraID)
	ObserveCaptureStart(d time.Duration)
}

// RegistryConfig tunes the session lifecycle. Zero values fall back to the
// package defaults.
type RegistryConfig struct {
	GracePeriod  time.Duration
	StartTimeout time.Duration
	StopTimeout  time.Duration
}

// Registry owns the camera_id -> stream session mapping. All session
// mutation is serialized per camera: the registry mutex only guards the map,
// each session carries its own mutex, so cameras never block each other.
type Registry struct {
	cameras  ports.CameraRepository
	captures ports.CaptureFactory
	metrics  RegistryMetrics
	logger   *zap.SugaredLogger

	gracePeriod  time.Duration
	startTimeout time.Duration
	stopTimeout  time.Duration

	mu       sync.Mutex
	sessions map[domain.CameraID]*streamSession
	closed   bool
}

// streamSession is the per-camera state machine. capture is non-nil iff the
// session is running; removed marks a tombstone that attachers must not reuse.
type streamSession struct {
	cameraID domain.CameraID
	name     string

	mu               sync.Mutex
	capture          ports.CaptureProcess
	viewers          map[domain.ViewerID]struct{}
	createdAt        time.Time
	lastViewerLeftAt time.Time
	graceTimer       *time.Timer
	removed          bool
}

func NewRegistry(
	cfg RegistryConfig,
	cameras ports.CameraRepository,
	captures ports.CaptureFactory,
	metrics RegistryMetrics,
	logger *zap.SugaredLogger,
) *Registry {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Registry{
		cameras:      cameras,
		captures:     captures,
		metrics:      metrics,
		logger:       logger,
		gracePeriod:  cfg.GracePeriod,
		startTimeout: cfg.StartTimeout,
		stopTimeout:  cfg.StopTimeout,
		sessions:     make(map[domain.CameraID]*streamSession),
	}
}

// AttachViewer resolves the camera configuration, get-or-creates the stream
// session and increments its viewer count. The capture process is started
// synchronously while holding the session mutex, so a second concurrent caller
// for the same camera waits for the first start instead of racing a duplicate
// process. Other cameras proceed in parallel.
func (r *Registry) AttachViewer(ctx context.Context, cameraID domain.CameraID) (*ports.ViewerHandle, error) {
	cfg, err := r.cameras.GetByID(ctx, cameraID)
	if err != nil {
		return nil, err
	}

	for {
		sess, err := r.session(cameraID, cfg.Name)
		if err != nil {
			return nil, err
		}

		sess.mu.Lock()
		if sess.removed {
			// Lost a race with a teardown; the tombstone is already out of
			// the map, so loop for a fresh session.
			sess.mu.Unlock()
			continue
		}

		if sess.graceTimer != nil {
			sess.graceTimer.Stop()
			sess.graceTimer = nil
			r.logger.Debugw("grace-period teardown cancelled", "camera_id", cameraID)
		}

		if sess.capture == nil {
			startedAt := time.Now()
			startCtx, cancel := context.WithTimeout(ctx, r.startTimeout)
			capture, startErr := r.captures.Start(startCtx, cfg)
			cancel()
			if startErr != nil {
				sess.removed = true
				sess.mu.Unlock()
				r.remove(cameraID, sess)
				r.metrics.CaptureStartFailed(cameraID)
				r.logger.Errorw("capture process failed to start",
					"camera_id", cameraID,
					"error", startErr,
				)
				var cse *domain.CaptureStartError
				if errors.As(startErr, &cse) {
					return nil, startErr
				}
				return nil, &domain.CaptureStartError{CameraID: cameraID, Cause: startErr}
			}
			sess.capture = capture
			sess.createdAt = time.Now()
			go r.watch(sess, capture)
			r.metrics.StreamStarted(cameraID)
			r.metrics.ObserveCaptureStart(time.Since(startedAt))
			r.logger.Infow("capture process started",
				"camera_id", cameraID,
				"start_duration", time.Since(startedAt),
			)
		}

		viewerID := domain.ViewerID(uuid.NewString())
		sess.viewers[viewerID] = struct{}{}
		capture := sess.capture
		count := len(sess.viewers)
		sess.mu.Unlock()

		r.metrics.ViewerAttached(cameraID)
		r.logger.Infow("viewer attached",
			"camera_id", cameraID,
			"viewer_id", viewerID,
			"viewer_count", count,
		)
		return &ports.ViewerHandle{ViewerID: viewerID, CameraID: cameraID, Capture: capture}, nil
	}
}

// DetachViewer decrements the viewer count. Unknown viewer ids are ignored,
// which makes concurrent or duplicate close events decrement exactly once.
// When the last viewer leaves, teardown is deferred by the grace period.
func (r *Registry) DetachViewer(cameraID domain.CameraID, viewerID domain.ViewerID) {
	sess := r.lookup(cameraID)
	if sess == nil {
		return
	}

	sess.mu.Lock()
	if _, attached := sess.viewers[viewerID]; !attached {
		sess.mu.Unlock()
		return
	}
	delete(sess.viewers, viewerID)
	count := len(sess.viewers)
	if count == 0 && sess.capture != nil && !sess.removed {
		sess.lastViewerLeftAt = time.Now()
		if sess.graceTimer != nil {
			sess.graceTimer.Stop()
		}
		sess.graceTimer = time.AfterFunc(r.gracePeriod, func() {
			r.teardownIfIdle(cameraID, sess)
		})
	}
	sess.mu.Unlock()

	r.metrics.ViewerDetached(cameraID)
	r.logger.Infow("viewer detached",
		"camera_id", cameraID,
		"viewer_id", viewerID,
		"viewer_count", count,
	)
}

// ForceCleanup is the administrative override for stuck streams: it tears the
// session down regardless of viewer count and swallows "already dead" errors.
func (r *Registry) ForceCleanup(ctx context.Context, cameraID domain.CameraID) {
	defer r.metrics.CleanupForced(cameraID)

	sess := r.lookup(cameraID)
	if sess == nil {
		r.logger.Infow("force cleanup: no session", "camera_id", cameraID)
		return
	}

	sess.mu.Lock()
	capture := sess.capture
	evicted := len(sess.viewers)
	sess.capture = nil
	sess.viewers = make(map[domain.ViewerID]struct{})
	sess.removed = true
	if sess.graceTimer != nil {
		sess.graceTimer.Stop()
		sess.graceTimer = nil
	}
	sess.mu.Unlock()

	r.remove(cameraID, sess)

	if capture != nil {
		if err := capture.Stop(ctx); err != nil {
			r.logger.Warnw("force cleanup: ignoring capture stop error",
				"camera_id", cameraID,
				"error", err,
			)
		}
		r.metrics.StreamStopped(cameraID)
	}
	r.logger.Infow("force cleanup completed",
		"camera_id", cameraID,
		"evicted_viewers", evicted,
	)
}

// Status reports the instantaneous state of one camera's session, or nil when
// no session exists. Callers decide whether a missing session means an idle
// camera or an unknown one.
func (r *Registry) Status(cameraID domain.CameraID) *domain.StreamStatus {
	sess := r.lookup(cameraID)
	if sess == nil {
		return nil
	}
	return sess.status()
}

// Statuses reports every live session.
func (r *Registry) Statuses() []*domain.StreamStatus {
	r.mu.Lock()
	sessions := make([]*streamSession, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	statuses := make([]*domain.StreamStatus, 0, len(sessions))
	for _, sess := range sessions {
		statuses = append(statuses, sess.status())
	}
	return statuses
}

// Shutdown terminates every session and rejects further attaches.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*streamSession, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.sessions = make(map[domain.CameraID]*streamSession)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		capture := sess.capture
		sess.capture = nil
		sess.viewers = make(map[domain.ViewerID]struct{})
		sess.removed = true
		if sess.graceTimer != nil {
			sess.graceTimer.Stop()
			sess.graceTimer = nil
		}
		sess.mu.Unlock()

		if capture != nil {
			if err := capture.Stop(ctx); err != nil {
				r.logger.Warnw("shutdown: capture stop error",
					"camera_id", sess.cameraID,
					"error", err,
				)
			}
			r.metrics.StreamStopped(sess.cameraID)
		}
	}
	r.logger.Infow("stream registry shut down", "sessions", len(sessions))
}

// session returns the live session for cameraID, creating an empty one when
// absent. Callers must handle the removed flag under the session mutex.
func (r *Registry) session(cameraID domain.CameraID, name string) (*streamSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, domain.ErrRegistryClosed
	}
	sess, ok := r.sessions[cameraID]
	if !ok {
		sess = &streamSession{
			cameraID: cameraID,
			name:     name,
			viewers:  make(map[domain.ViewerID]struct{}),
		}
		r.sessions[cameraID] = sess
	}
	return sess, nil
}

func (r *Registry) lookup(cameraID domain.CameraID) *streamSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[cameraID]
}

// remove deletes the session only if the map still holds this exact instance,
// so a replacement session created in the meantime survives.
func (r *Registry) remove(cameraID domain.CameraID, sess *streamSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[cameraID]; ok && cur == sess {
		delete(r.sessions, cameraID)
	}
}

// teardownIfIdle runs when the grace timer fires. A viewer that attached after
// the timer fired but before this ran holds the session alive.
func (r *Registry) teardownIfIdle(cameraID domain.CameraID, sess *streamSession) {
	sess.mu.Lock()
	if sess.removed || len(sess.viewers) > 0 || sess.capture == nil {
		sess.mu.Unlock()
		return
	}
	capture := sess.capture
	sess.capture = nil
	sess.removed = true
	sess.graceTimer = nil
	sess.mu.Unlock()

	r.remove(cameraID, sess)

	ctx, cancel := context.WithTimeout(context.Background(), r.stopTimeout)
	defer cancel()
	if err := capture.Stop(ctx); err != nil {
		r.logger.Warnw("capture stop error after grace period",
			"camera_id", cameraID,
			"error", err,
		)
	}
	r.metrics.StreamStopped(cameraID)
	r.logger.Infow("stream stopped after grace period", "camera_id", cameraID)
}

// watch observes the capture process exit. A requested stop clears
// sess.capture before stopping, so anything still wired up here is a crash:
// evict every viewer (their feed channels are closed by the capture) and
// remove the session so the next attach retries cleanly.
func (r *Registry) watch(sess *streamSession, capture ports.CaptureProcess) {
	<-capture.Done()

	sess.mu.Lock()
	if sess.removed || sess.capture != capture {
		sess.mu.Unlock()
		return
	}
	evicted := len(sess.viewers)
	sess.capture = nil
	sess.viewers = make(map[domain.ViewerID]struct{})
	sess.removed = true
	if sess.graceTimer != nil {
		sess.graceTimer.Stop()
		sess.graceTimer = nil
	}
	sess.mu.Unlock()

	r.remove(sess.cameraID, sess)

	// Reap the process; it already exited so errors are informational only.
	ctx, cancel := context.WithTimeout(context.Background(), r.stopTimeout)
	defer cancel()
	_ = capture.Stop(ctx)

	r.metrics.StreamCrashed(sess.cameraID)
	r.logger.Errorw("capture process exited unexpectedly",
		"camera_id", sess.cameraID,
		"evicted_viewers", evicted,
		"error", capture.Err(),
	)
}

func (s *streamSession) status() *domain.StreamStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &domain.StreamStatus{
		CameraID:    s.cameraID,
		CameraName:  s.name,
		ViewerCount: len(s.viewers),
	}
	if s.capture != nil {
		st.IsRunning = true
		st.UptimeSeconds = domain.Uptime(s.capture.StartedAt())
	}
	return st
}
