package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"
	"github.com/Joa705/raspberrypi-projects/internal/core/ports"
	"github.com/Joa705/raspberrypi-projects/pkg/tracing"

	"go.uber.org/zap"
)

const (
	defaultFFmpegPath    = "ffmpeg"
	defaultRTSPTransport = "tcp"
	defaultRTSPPort      = 554
	defaultKillAfter     = 3 * time.Second
	defaultFeedBuffer    = 256

	readBufferSize = 256 * 1024
	stderrTailSize = 2 * 1024
)

// Config tunes the ffmpeg capture factory. Zero values fall back to defaults.
type Config struct {
	FFmpegPath    string
	RTSPTransport string
	RTSPPort      int
	KillAfter     time.Duration
	FeedBuffer    int
}

// Factory starts one ffmpeg subprocess per camera, remuxing the camera's RTSP
// stream into an H264 Annex-B elementary stream on stdout.
type Factory struct {
	cfg    Config
	logger *zap.SugaredLogger
}

func NewFactory(cfg Config, logger *zap.SugaredLogger) *Factory {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = defaultFFmpegPath
	}
	if cfg.RTSPTransport == "" {
		cfg.RTSPTransport = defaultRTSPTransport
	}
	if cfg.RTSPPort <= 0 {
		cfg.RTSPPort = defaultRTSPPort
	}
	if cfg.KillAfter <= 0 {
		cfg.KillAfter = defaultKillAfter
	}
	if cfg.FeedBuffer <= 0 {
		cfg.FeedBuffer = defaultFeedBuffer
	}
	return &Factory{cfg: cfg, logger: logger}
}

// Start launches the capture subprocess and blocks until the first NAL unit
// arrives, the context expires or the process exits early. On any failure the
// subprocess is killed and reaped; no orphan is left behind.
func (f *Factory) Start(ctx context.Context, cfg *domain.CameraConfig) (ports.CaptureProcess, error) {
	ctx, span := tracing.TraceCapture(ctx, "start", string(cfg.CameraID))
	defer span.End()

	args := []string{
		"-nostdin",
		"-loglevel", "error",
		"-rtsp_transport", f.cfg.RTSPTransport,
		"-i", cfg.RTSPURL(f.cfg.RTSPPort),
		"-an",
		"-c:v", "copy",
		"-f", "h264",
		"pipe:1",
	}
	cmd := exec.Command(f.cfg.FFmpegPath, args...)

	p := &process{
		cameraID:   cfg.CameraID,
		cmd:        cmd,
		logger:     f.logger,
		killAfter:  f.cfg.KillAfter,
		feedBuffer: f.cfg.FeedBuffer,
		subs:       make(map[domain.ViewerID]chan domain.VideoUnit),
		done:       make(chan struct{}),
		firstUnit:  make(chan struct{}),
		stderr:     &tailBuffer{max: stderrTailSize},
	}
	cmd.Stderr = p.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &domain.CaptureStartError{CameraID: cfg.CameraID, Cause: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &domain.CaptureStartError{CameraID: cfg.CameraID, Cause: err}
	}
	p.startedAt = time.Now()

	go p.run(stdout)

	select {
	case <-p.firstUnit:
		f.logger.Infow("capture subprocess producing video",
			"camera_id", cfg.CameraID,
			"pid", cmd.Process.Pid,
		)
		return p, nil
	case <-p.done:
		return nil, &domain.CaptureStartError{
			CameraID: cfg.CameraID,
			Cause:    fmt.Errorf("process exited during startup: %w", p.exitErr()),
		}
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), f.cfg.KillAfter)
		defer cancel()
		_ = p.Stop(stopCtx)
		return nil, &domain.CaptureStartError{
			CameraID: cfg.CameraID,
			Cause:    fmt.Errorf("no video before deadline: %w", ctx.Err()),
		}
	}
}

// Snapshot grabs a single JPEG frame through a short-lived ffmpeg invocation.
func (f *Factory) Snapshot(ctx context.Context, cfg *domain.CameraConfig) ([]byte, error) {
	ctx, span := tracing.TraceCapture(ctx, "snapshot", string(cfg.CameraID))
	defer span.End()

	args := []string{
		"-nostdin",
		"-loglevel", "error",
		"-rtsp_transport", f.cfg.RTSPTransport,
		"-i", cfg.RTSPURL(f.cfg.RTSPPort),
		"-an",
		"-frames:v", "1",
		"-c:v", "mjpeg",
		"-f", "image2",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, f.cfg.FFmpegPath, args...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("snapshot failed for camera %s: %s", cfg.CameraID, exitErr.Stderr)
		}
		return nil, fmt.Errorf("snapshot failed for camera %s: %w", cfg.CameraID, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("snapshot failed for camera %s: empty frame", cfg.CameraID)
	}
	return out, nil
}

// process is one running ffmpeg capture. The read goroutine owns the error
// field and closes done after setting it, so Err is safe to read once Done
// is closed.
type process struct {
	cameraID   domain.CameraID
	cmd        *exec.Cmd
	logger     *zap.SugaredLogger
	killAfter  time.Duration
	feedBuffer int
	startedAt  time.Time
	stderr     *tailBuffer

	mu         sync.Mutex
	subs       map[domain.ViewerID]chan domain.VideoUnit
	subsClosed bool

	done      chan struct{}
	err       error
	firstUnit chan struct{}
	firstOnce sync.Once
	stopping  atomic.Bool
	termOnce  sync.Once
}

func (p *process) run(stdout io.ReadCloser) {
	reader := bufio.NewReaderSize(stdout, readBufferSize)
	splitter := &annexBSplitter{}
	buf := make([]byte, 32*1024)

	var readErr error
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			for _, unit := range splitter.Push(buf[:n]) {
				p.firstOnce.Do(func() { close(p.firstUnit) })
				p.broadcast(unit)
			}
		}
		if err != nil {
			if err != io.EOF {
				readErr = err
			}
			break
		}
	}

	waitErr := p.cmd.Wait()
	if !p.stopping.Load() {
		cause := waitErr
		if cause == nil {
			cause = readErr
		}
		if tail := p.stderr.String(); tail != "" {
			p.err = fmt.Errorf("%w: %v (stderr: %s)", domain.ErrCaptureStopped, cause, tail)
		} else {
			p.err = fmt.Errorf("%w: %v", domain.ErrCaptureStopped, cause)
		}
	}

	p.closeSubs()
	close(p.done)
}

// Subscribe registers a viewer feed. Sends never block the capture loop: a
// full feed drops its oldest unit first.
func (p *process) Subscribe(id domain.ViewerID) <-chan domain.VideoUnit {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subsClosed {
		ch := make(chan domain.VideoUnit)
		close(ch)
		return ch
	}
	ch := make(chan domain.VideoUnit, p.feedBuffer)
	p.subs[id] = ch
	return ch
}

func (p *process) Unsubscribe(id domain.ViewerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.subs[id]; ok {
		delete(p.subs, id)
		close(ch)
	}
}

func (p *process) broadcast(unit domain.VideoUnit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- unit:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- unit:
			default:
			}
		}
	}
}

func (p *process) closeSubs() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		close(ch)
		delete(p.subs, id)
	}
	p.subsClosed = true
}

func (p *process) Done() <-chan struct{} { return p.done }

func (p *process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *process) StartedAt() time.Time { return p.startedAt }

// Stop terminates the subprocess: SIGTERM first, SIGKILL once the grace
// period or the caller's context runs out. Idempotent; signalling an already
// dead process is not an error.
func (p *process) Stop(ctx context.Context) error {
	p.stopping.Store(true)
	p.termOnce.Do(func() {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(syscall.SIGTERM)
		}
	})

	select {
	case <-p.done:
		return nil
	case <-time.After(p.killAfter):
	case <-ctx.Done():
	}

	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *process) exitErr() error {
	if p.err != nil {
		return p.err
	}
	return domain.ErrCaptureStopped
}

// tailBuffer keeps the last max bytes written, for error context.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
