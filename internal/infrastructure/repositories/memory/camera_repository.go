package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"
	"github.com/Joa705/raspberrypi-projects/internal/core/ports"
)

type MemoryCameraRepository struct {
	cameras map[domain.CameraID]*domain.CameraConfig
	mu      sync.RWMutex
}

func NewMemoryCameraRepository(cameras []*domain.CameraConfig) ports.CameraRepository {
	repo := &MemoryCameraRepository{
		cameras: make(map[domain.CameraID]*domain.CameraConfig),
	}
	for _, camera := range cameras {
		repo.cameras[camera.CameraID] = camera
	}
	return repo
}

func (r *MemoryCameraRepository) GetByID(ctx context.Context, id domain.CameraID) (*domain.CameraConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	camera, exists := r.cameras[id]
	if !exists {
		return nil, domain.ErrCameraNotFound
	}

	return camera, nil
}

func (r *MemoryCameraRepository) List(ctx context.Context) ([]*domain.CameraConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cameras := make([]*domain.CameraConfig, 0, len(r.cameras))
	for _, camera := range r.cameras {
		cameras = append(cameras, camera)
	}
	sort.Slice(cameras, func(i, j int) bool {
		return cameras[i].CameraID < cameras[j].CameraID
	})

	return cameras, nil
}
