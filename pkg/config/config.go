package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// CameraEntry is one camera in the static inventory.
type CameraEntry struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Host          string `yaml:"host"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	StreamQuality string `yaml:"stream_quality"`
	Description   string `yaml:"description"`
}

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Stream struct {
		GracePeriod  time.Duration `yaml:"grace_period"`
		StartTimeout time.Duration `yaml:"start_timeout"`
		StopTimeout  time.Duration `yaml:"stop_timeout"`
		FrameRate    int           `yaml:"frame_rate"`
	} `yaml:"stream"`

	Capture struct {
		FFmpegPath    string `yaml:"ffmpeg_path"`
		RTSPTransport string `yaml:"rtsp_transport"`
		RTSPPort      int    `yaml:"rtsp_port"`
	} `yaml:"capture"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		PortRange struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
	} `yaml:"webrtc"`

	Cameras []CameraEntry `yaml:"cameras"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool   `yaml:"enabled"`
		ServiceName string `yaml:"service_name"`
		JaegerURL   string `yaml:"jaeger_url"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret     string        `yaml:"jwt_secret"`
		TokenTTL      time.Duration `yaml:"token_ttl"`
		AdminUser     string        `yaml:"admin_user"`
		AdminPassword string        `yaml:"admin_password"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		MaxConcurrent     int     `yaml:"max_concurrent"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Stream lifecycle
	if c.Stream.GracePeriod < 0 {
		return fmt.Errorf("stream.grace_period must be >= 0")
	}
	if c.Stream.StartTimeout <= 0 {
		return fmt.Errorf("stream.start_timeout must be > 0")
	}
	if c.Stream.StopTimeout <= 0 {
		return fmt.Errorf("stream.stop_timeout must be > 0")
	}
	if c.Stream.FrameRate <= 0 {
		return fmt.Errorf("stream.frame_rate must be > 0")
	}

	// Capture
	if c.Capture.FFmpegPath == "" {
		return fmt.Errorf("capture.ffmpeg_path must not be empty")
	}
	if c.Capture.RTSPTransport != "tcp" && c.Capture.RTSPTransport != "udp" {
		return fmt.Errorf("capture.rtsp_transport must be tcp or udp")
	}
	if c.Capture.RTSPPort <= 0 || c.Capture.RTSPPort > 65535 {
		return fmt.Errorf("capture.rtsp_port must be a valid port")
	}

	// WebRTC
	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}

	// Cameras
	seen := make(map[string]bool, len(c.Cameras))
	for i, camera := range c.Cameras {
		if camera.ID == "" {
			return fmt.Errorf("cameras[%d].id must not be empty", i)
		}
		if camera.Host == "" {
			return fmt.Errorf("cameras[%d].host must not be empty", i)
		}
		if seen[camera.ID] {
			return fmt.Errorf("cameras[%d].id %q is duplicated", i, camera.ID)
		}
		seen[camera.ID] = true
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be > 0")
	}
	if c.Auth.AdminUser == "" {
		return fmt.Errorf("auth.admin_user must not be empty")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Stream.GracePeriod = 30 * time.Second
	cfg.Stream.StartTimeout = 10 * time.Second
	cfg.Stream.StopTimeout = 5 * time.Second
	cfg.Stream.FrameRate = 15

	cfg.Capture.FFmpegPath = "ffmpeg"
	cfg.Capture.RTSPTransport = "tcp"
	cfg.Capture.RTSPPort = 554

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "camhub"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.TokenTTL = 15 * time.Minute
	cfg.Auth.AdminUser = "admin"
	cfg.Auth.AdminPassword = "admin"

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 50
	cfg.RateLimiting.Burst = 100
	cfg.RateLimiting.MaxConcurrent = 0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("CAMHUB_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("CAMHUB_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("CAMHUB_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if user := os.Getenv("CAMHUB_ADMIN_USER"); user != "" {
		c.Auth.AdminUser = user
	}
	if password := os.Getenv("CAMHUB_ADMIN_PASSWORD"); password != "" {
		c.Auth.AdminPassword = password
	}
	if addr := os.Getenv("CAMHUB_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if path := os.Getenv("CAMHUB_FFMPEG_PATH"); path != "" {
		c.Capture.FFmpegPath = path
	}
}
