package monitoring

import (
	"time"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes stream lifecycle metrics. It implements the
// metrics interfaces of the registry, signaling and transport layers.
type PrometheusCollector struct {
	// Gauges
	streamsActive prometheus.Gauge
	viewersActive *prometheus.GaugeVec

	// Counters
	captureStartsTotal   prometheus.Counter
	captureFailuresTotal prometheus.Counter
	streamCrashesTotal   *prometheus.CounterVec
	cleanupsForcedTotal  *prometheus.CounterVec
	pliReceivedTotal     *prometheus.CounterVec

	// Histograms
	captureStartDuration prometheus.Histogram
	handshakeDuration    *prometheus.HistogramVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		streamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "camhub_streams_active",
			Help: "Number of camera streams with a running capture process",
		}),

		viewersActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "camhub_viewers_active",
			Help: "Number of attached viewers per camera",
		}, []string{"camera_id"}),

		captureStartsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "camhub_capture_starts_total",
			Help: "Total number of capture processes started",
		}),

		captureFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "camhub_capture_start_failures_total",
			Help: "Total number of capture processes that failed to start",
		}),

		streamCrashesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "camhub_stream_crashes_total",
			Help: "Total number of capture processes that exited unexpectedly",
		}, []string{"camera_id"}),

		cleanupsForcedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "camhub_cleanups_forced_total",
			Help: "Total number of forced stream cleanups",
		}, []string{"camera_id"}),

		pliReceivedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "camhub_pli_received_total",
			Help: "Total number of picture loss indications received from viewers",
		}, []string{"camera_id"}),

		captureStartDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "camhub_capture_start_duration_seconds",
			Help:    "Time from spawning ffmpeg to the first video unit",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		handshakeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "camhub_signaling_handshake_duration_seconds",
			Help:    "Duration of WebRTC offer/answer handshakes",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"result"}),
	}
}

func (p *PrometheusCollector) StreamStarted(cameraID domain.CameraID) {
	p.streamsActive.Inc()
	p.captureStartsTotal.Inc()
}

func (p *PrometheusCollector) StreamStopped(cameraID domain.CameraID) {
	p.streamsActive.Dec()
	p.viewersActive.DeleteLabelValues(string(cameraID))
}

func (p *PrometheusCollector) StreamCrashed(cameraID domain.CameraID) {
	p.streamsActive.Dec()
	p.streamCrashesTotal.WithLabelValues(string(cameraID)).Inc()
	p.viewersActive.DeleteLabelValues(string(cameraID))
}

func (p *PrometheusCollector) ViewerAttached(cameraID domain.CameraID) {
	p.viewersActive.WithLabelValues(string(cameraID)).Inc()
}

func (p *PrometheusCollector) ViewerDetached(cameraID domain.CameraID) {
	p.viewersActive.WithLabelValues(string(cameraID)).Dec()
}

func (p *PrometheusCollector) CaptureStartFailed(cameraID domain.CameraID) {
	p.captureFailuresTotal.Inc()
}

func (p *PrometheusCollector) CleanupForced(cameraID domain.CameraID) {
	p.cleanupsForcedTotal.WithLabelValues(string(cameraID)).Inc()
}

func (p *PrometheusCollector) ObserveCaptureStart(d time.Duration) {
	p.captureStartDuration.Observe(d.Seconds())
}

func (p *PrometheusCollector) ObserveHandshake(d time.Duration, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	p.handshakeDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (p *PrometheusCollector) PictureLossIndication(cameraID domain.CameraID) {
	p.pliReceivedTotal.WithLabelValues(string(cameraID)).Inc()
}
