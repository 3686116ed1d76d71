package ports

import (
	"context"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"
)

// CameraRepository reads static camera configuration by id. The configuration
// lifecycle (registration, credentials) is owned by the configuration store;
// the core only reads.
type CameraRepository interface {
	GetByID(ctx context.Context, id domain.CameraID) (*domain.CameraConfig, error)
	List(ctx context.Context) ([]*domain.CameraConfig, error)
}
