package services

import (
	"time"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"
)

// NopMetrics discards every lifecycle event.
type NopMetrics struct{}

func (NopMetrics) StreamStarted(domain.CameraID)      {}
func (NopMetrics) StreamStopped(domain.CameraID)      {}
func (NopMetrics) StreamCrashed(domain.CameraID)      {}
func (NopMetrics) ViewerAttached(domain.CameraID)     {}
func (NopMetrics) ViewerDetached(domain.CameraID)     {}
func (NopMetrics) CaptureStartFailed(domain.CameraID) {}
func (NopMetrics) CleanupForced(domain.CameraID)      {}
func (NopMetrics) ObserveCaptureStart(time.Duration)  {}
