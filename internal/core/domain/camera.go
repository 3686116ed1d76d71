package domain

import (
	"fmt"
	"time"
)

type CameraID string
type ViewerID string

// CameraConfig is the static camera configuration read from the configuration
// store. It is immutable for the lifetime of a stream session.
type CameraConfig struct {
	CameraID      CameraID `json:"camera_id" yaml:"camera_id"`
	Name          string   `json:"name" yaml:"name"`
	Host          string   `json:"host" yaml:"host"`
	Username      string   `json:"-" yaml:"username"`
	Password      string   `json:"-" yaml:"password"`
	StreamQuality string   `json:"stream_quality" yaml:"stream_quality"`
	Description   string   `json:"description,omitempty" yaml:"description"`
}

// RTSPURL builds the camera's RTSP endpoint. Tapo cameras expose stream1 (HD)
// and stream2 (SD) on the default RTSP port.
func (c *CameraConfig) RTSPURL(port int) string {
	quality := c.StreamQuality
	if quality == "" {
		quality = "stream1"
	}
	return fmt.Sprintf("rtsp://%s:%s@%s:%d/%s", c.Username, c.Password, c.Host, port, quality)
}

// StreamStatus is a point-in-time projection of one stream session.
type StreamStatus struct {
	CameraID      CameraID `json:"camera_id"`
	CameraName    string   `json:"camera_name,omitempty"`
	IsRunning     bool     `json:"is_running"`
	ViewerCount   int      `json:"viewer_count"`
	UptimeSeconds int64    `json:"uptime_seconds"`
}

// VideoUnit is one H264 Annex-B NAL unit read from the upstream capture
// process. Keyframe marks IDR units so transports can start decodable.
type VideoUnit struct {
	Data     []byte
	Keyframe bool
}

// ViewerState tracks the lifecycle of a single viewer session.
type ViewerState int

const (
	ViewerNegotiating ViewerState = iota
	ViewerAttached
	ViewerClosed
)

func (s ViewerState) String() string {
	switch s {
	case ViewerNegotiating:
		return "negotiating"
	case ViewerAttached:
		return "attached"
	case ViewerClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Uptime converts a capture start time into whole seconds for status reads.
func Uptime(startedAt time.Time) int64 {
	if startedAt.IsZero() {
		return 0
	}
	return int64(time.Since(startedAt).Seconds())
}
