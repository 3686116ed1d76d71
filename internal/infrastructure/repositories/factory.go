package repositories

import (
	"context"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"
	"github.com/Joa705/raspberrypi-projects/internal/core/ports"
	"github.com/Joa705/raspberrypi-projects/internal/infrastructure/repositories/memory"
	redisrepo "github.com/Joa705/raspberrypi-projects/internal/infrastructure/repositories/redis"
	"github.com/Joa705/raspberrypi-projects/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	cameras     []*domain.CameraConfig
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory. The configured
// cameras seed whichever backend ends up in use.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		cameras:  cameraConfigs(cfg),
		logger:   logger,
	}

	// Try to connect to Redis if enabled
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreateCameraRepository creates a camera repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreateCameraRepository(ctx context.Context) (ports.CameraRepository, error) {
	if f.useRedis && f.redisClient != nil {
		repo := redisrepo.NewRedisCameraRepository(f.redisClient)
		if err := repo.Seed(ctx, f.cameras); err != nil {
			f.logger.Warnw("failed to seed cameras into Redis, falling back to memory repository",
				"error", err,
			)
			return memory.NewMemoryCameraRepository(f.cameras), nil
		}
		return repo, nil
	}
	return memory.NewMemoryCameraRepository(f.cameras), nil
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}

func cameraConfigs(cfg *config.Config) []*domain.CameraConfig {
	cameras := make([]*domain.CameraConfig, 0, len(cfg.Cameras))
	for _, entry := range cfg.Cameras {
		cameras = append(cameras, &domain.CameraConfig{
			CameraID:      domain.CameraID(entry.ID),
			Name:          entry.Name,
			Host:          entry.Host,
			Username:      entry.Username,
			Password:      entry.Password,
			StreamQuality: entry.StreamQuality,
			Description:   entry.Description,
		})
	}
	return cameras
}
