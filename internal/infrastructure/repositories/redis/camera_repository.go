package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"
	"github.com/Joa705/raspberrypi-projects/internal/core/ports"
	"github.com/Joa705/raspberrypi-projects/pkg/retry"

	"github.com/redis/go-redis/v9"
)

// cameraRecord is the storage shape of a camera. The domain struct hides
// credentials from JSON responses, here they have to round-trip.
type cameraRecord struct {
	CameraID      string `json:"camera_id"`
	Name          string `json:"name"`
	Host          string `json:"host"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	StreamQuality string `json:"stream_quality"`
	Description   string `json:"description,omitempty"`
}

func toRecord(camera *domain.CameraConfig) cameraRecord {
	return cameraRecord{
		CameraID:      string(camera.CameraID),
		Name:          camera.Name,
		Host:          camera.Host,
		Username:      camera.Username,
		Password:      camera.Password,
		StreamQuality: camera.StreamQuality,
		Description:   camera.Description,
	}
}

func (r cameraRecord) toDomain() *domain.CameraConfig {
	return &domain.CameraConfig{
		CameraID:      domain.CameraID(r.CameraID),
		Name:          r.Name,
		Host:          r.Host,
		Username:      r.Username,
		Password:      r.Password,
		StreamQuality: r.StreamQuality,
		Description:   r.Description,
	}
}

type RedisCameraRepository struct {
	client   *redis.Client
	prefix   string
	retryCfg retry.Config
}

func NewRedisCameraRepository(client *redis.Client) *RedisCameraRepository {
	cfg := retry.DefaultConfig()
	cfg.NonRetryableErrors = []error{domain.ErrCameraNotFound}
	return &RedisCameraRepository{
		client:   client,
		prefix:   "camhub:camera:",
		retryCfg: cfg,
	}
}

var _ ports.CameraRepository = (*RedisCameraRepository)(nil)

func (r *RedisCameraRepository) cameraKey(id domain.CameraID) string {
	return r.prefix + string(id)
}

func (r *RedisCameraRepository) indexKey() string {
	return r.prefix + "ids"
}

// Seed writes the configured cameras into Redis so other instances sharing
// the same database see one camera inventory.
func (r *RedisCameraRepository) Seed(ctx context.Context, cameras []*domain.CameraConfig) error {
	for _, camera := range cameras {
		data, err := json.Marshal(toRecord(camera))
		if err != nil {
			return fmt.Errorf("failed to marshal camera %s: %w", camera.CameraID, err)
		}

		pipe := r.client.TxPipeline()
		pipe.Set(ctx, r.cameraKey(camera.CameraID), data, 0)
		pipe.SAdd(ctx, r.indexKey(), string(camera.CameraID))
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to seed camera %s: %w", camera.CameraID, err)
		}
	}
	return nil
}

func (r *RedisCameraRepository) GetByID(ctx context.Context, id domain.CameraID) (*domain.CameraConfig, error) {
	return retry.RetryWithResult(ctx, r.retryCfg, func() (*domain.CameraConfig, error) {
		data, err := r.client.Get(ctx, r.cameraKey(id)).Result()
		if err == redis.Nil {
			return nil, domain.ErrCameraNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get camera from Redis: %w", err)
		}

		var record cameraRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal camera: %w", err)
		}

		return record.toDomain(), nil
	})
}

func (r *RedisCameraRepository) List(ctx context.Context) ([]*domain.CameraConfig, error) {
	return retry.RetryWithResult(ctx, r.retryCfg, func() ([]*domain.CameraConfig, error) {
		ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list cameras from Redis: %w", err)
		}
		sort.Strings(ids)

		cameras := make([]*domain.CameraConfig, 0, len(ids))
		for _, id := range ids {
			data, err := r.client.Get(ctx, r.cameraKey(domain.CameraID(id))).Result()
			if err == redis.Nil {
				// Removed between SMembers and Get, skip it.
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to get camera from Redis: %w", err)
			}

			var record cameraRecord
			if err := json.Unmarshal([]byte(data), &record); err != nil {
				return nil, fmt.Errorf("failed to unmarshal camera: %w", err)
			}
			cameras = append(cameras, record.toDomain())
		}

		return cameras, nil
	})
}
