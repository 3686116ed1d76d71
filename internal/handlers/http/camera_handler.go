package http

import (
	"errors"
	"net/http"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"
	"github.com/Joa705/raspberrypi-projects/internal/core/ports"
	"github.com/Joa705/raspberrypi-projects/internal/infrastructure/signal"
	apperrors "github.com/Joa705/raspberrypi-projects/pkg/errors"

	webrtc "github.com/pion/webrtc/v3"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CameraHandler struct {
	registry       ports.StreamRegistry
	signaling      ports.SignalingService
	cameras        ports.CameraRepository
	captureFactory ports.CaptureFactory
	streamer       *signal.Streamer
	logger         *zap.SugaredLogger
}

func NewCameraHandler(
	registry ports.StreamRegistry,
	signaling ports.SignalingService,
	cameras ports.CameraRepository,
	captureFactory ports.CaptureFactory,
	streamer *signal.Streamer,
	logger *zap.SugaredLogger,
) *CameraHandler {
	return &CameraHandler{
		registry:       registry,
		signaling:      signaling,
		cameras:        cameras,
		captureFactory: captureFactory,
		streamer:       streamer,
		logger:         logger,
	}
}

func (h *CameraHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/cameras", h.ListCameras)
	api.GET("/cameras/statuses", h.GetStatuses)
	api.GET("/cameras/:camera_id", h.GetCamera)
	api.GET("/cameras/:camera_id/status", h.GetStatus)
	api.GET("/cameras/:camera_id/snapshot", h.GetSnapshot)
	api.GET("/cameras/:camera_id/ws", h.StreamWebSocket)
	api.POST("/cameras/:camera_id/signal", h.Signal)
	api.POST("/cameras/:camera_id/cleanup", h.ForceCleanup)
}

func (h *CameraHandler) Signal(c *gin.Context) {
	cameraID := domain.CameraID(c.Param("camera_id"))

	var req struct {
		Offer struct {
			Type string `json:"type" binding:"required"`
			SDP  string `json:"sdp" binding:"required"`
		} `json:"offer" binding:"required"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	offer := webrtc.SessionDescription{
		Type: webrtc.NewSDPType(req.Offer.Type),
		SDP:  req.Offer.SDP,
	}
	if offer.Type != webrtc.SDPTypeOffer {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session description must be an offer"})
		return
	}

	answer, err := h.signaling.Signal(c.Request.Context(), cameraID, offer)
	if err != nil {
		h.signalError(c, cameraID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"answer": gin.H{
			"type": answer.Type.String(),
			"sdp":  answer.SDP,
		},
	})
}

func (h *CameraHandler) signalError(c *gin.Context, cameraID domain.CameraID, err error) {
	var startErr *domain.CaptureStartError
	var handshakeErr *domain.HandshakeError

	switch {
	case errors.Is(err, domain.ErrCameraNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
	case errors.As(err, &startErr):
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeBadGateway,
			"failed to start camera stream", http.StatusBadGateway).
			WithContext("camera_id", string(cameraID)))
	case errors.As(err, &handshakeErr):
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInvalidInput,
			"webrtc negotiation failed", http.StatusBadRequest).
			WithContext("camera_id", string(cameraID)))
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *CameraHandler) GetStatus(c *gin.Context) {
	cameraID := domain.CameraID(c.Param("camera_id"))

	if status := h.registry.Status(cameraID); status != nil {
		c.JSON(http.StatusOK, status)
		return
	}

	// No session: distinguish an idle camera from an unknown one.
	camera, err := h.cameras.GetByID(c.Request.Context(), cameraID)
	if err != nil {
		if errors.Is(err, domain.ErrCameraNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, &domain.StreamStatus{
		CameraID:   camera.CameraID,
		CameraName: camera.Name,
	})
}

func (h *CameraHandler) GetStatuses(c *gin.Context) {
	statuses := h.registry.Statuses()

	out := make(map[string]*domain.StreamStatus, len(statuses))
	for _, status := range statuses {
		out[string(status.CameraID)] = status
	}

	c.JSON(http.StatusOK, gin.H{"statuses": out})
}

func (h *CameraHandler) ForceCleanup(c *gin.Context) {
	cameraID := domain.CameraID(c.Param("camera_id"))

	if _, err := h.cameras.GetByID(c.Request.Context(), cameraID); err != nil {
		if errors.Is(err, domain.ErrCameraNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.registry.ForceCleanup(c.Request.Context(), cameraID)

	c.JSON(http.StatusOK, gin.H{"status": "cleaned"})
}

func (h *CameraHandler) ListCameras(c *gin.Context) {
	cameras, err := h.cameras.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cameras": cameras})
}

func (h *CameraHandler) GetCamera(c *gin.Context) {
	cameraID := domain.CameraID(c.Param("camera_id"))

	camera, err := h.cameras.GetByID(c.Request.Context(), cameraID)
	if err != nil {
		if errors.Is(err, domain.ErrCameraNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"camera": camera})
}

func (h *CameraHandler) GetSnapshot(c *gin.Context) {
	cameraID := domain.CameraID(c.Param("camera_id"))

	camera, err := h.cameras.GetByID(c.Request.Context(), cameraID)
	if err != nil {
		if errors.Is(err, domain.ErrCameraNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	frame, err := h.captureFactory.Snapshot(c.Request.Context(), camera)
	if err != nil {
		h.logger.Errorw("snapshot failed",
			"camera_id", cameraID,
			"error", err,
		)
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeBadGateway,
			"failed to capture snapshot", http.StatusBadGateway).
			WithContext("camera_id", string(cameraID)))
		return
	}

	c.Data(http.StatusOK, "image/jpeg", frame)
}

func (h *CameraHandler) StreamWebSocket(c *gin.Context) {
	cameraID := domain.CameraID(c.Param("camera_id"))

	if err := h.streamer.Stream(c.Writer, c.Request, cameraID); err != nil {
		if errors.Is(err, domain.ErrCameraNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
			return
		}
		var startErr *domain.CaptureStartError
		if errors.As(err, &startErr) {
			c.Error(apperrors.WrapError(err, apperrors.ErrCodeBadGateway,
				"failed to start camera stream", http.StatusBadGateway).
				WithContext("camera_id", string(cameraID)))
			return
		}
		// Upgrade failures already wrote a response.
		h.logger.Warnw("websocket stream ended with error",
			"camera_id", cameraID,
			"error", err,
		)
	}
}
