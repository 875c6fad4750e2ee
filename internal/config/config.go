package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
	LogsDir  string `yaml:"logsDir"`

	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	VideosBucket   string `yaml:"videosBucket"`
	NotesBucket    string `yaml:"notesBucket"`
	ExamBucket     string `yaml:"examBucket"`

	AuthJWKSURL  string `yaml:"authJwksUrl"`
	AuthIssuer   string `yaml:"authIssuer"`
	AuthAudience string `yaml:"authAudience"`

	AIBaseURL string `yaml:"aiBaseUrl"`
	AIAPIKey  string `yaml:"aiApiKey"`
	AIModel   string `yaml:"aiModel"`

	AccessURLTTLMinutes int `yaml:"accessUrlTtlMinutes"`

	CreatorShareBps  int64 `yaml:"creatorShareBps"`
	PlatformShareBps int64 `yaml:"platformShareBps"`

	UnlockRateLimitPerMinute int `yaml:"unlockRateLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("LOGS_DIR"); v != "" {
		cfg.LogsDir = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.MinioUseSSL = enabled
		}
	}
	if v := os.Getenv("STUDYVAULT_AUTH_JWKS_URL"); v != "" {
		cfg.AuthJWKSURL = v
	}
	if v := os.Getenv("STUDYVAULT_AUTH_ISSUER"); v != "" {
		cfg.AuthIssuer = v
	}
	if v := os.Getenv("STUDYVAULT_AUTH_AUDIENCE"); v != "" {
		cfg.AuthAudience = v
	}
	if v := os.Getenv("STUDYVAULT_AI_BASE_URL"); v != "" {
		cfg.AIBaseURL = v
	}
	if v := os.Getenv("STUDYVAULT_AI_API_KEY"); v != "" {
		cfg.AIAPIKey = v
	}
	if v := os.Getenv("STUDYVAULT_AI_MODEL"); v != "" {
		cfg.AIModel = v
	}
	if v := os.Getenv("STUDYVAULT_ACCESS_URL_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AccessURLTTLMinutes = n
		}
	}
	if v := os.Getenv("STUDYVAULT_UNLOCK_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.UnlockRateLimitPerMinute = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml or MINIO_ENDPOINT)")
	}
	if strings.TrimSpace(cfg.MinioAccessKey) == "" || strings.TrimSpace(cfg.MinioSecretKey) == "" {
		return errors.New("config: object storage requires MINIO_ACCESS_KEY + MINIO_SECRET_KEY")
	}
	if cfg.VideosBucket == "" || cfg.NotesBucket == "" || cfg.ExamBucket == "" {
		return errors.New("config: videosBucket, notesBucket, and examBucket are required")
	}
	if cfg.AuthJWKSURL == "" {
		return errors.New("config: authJwksUrl is required (set in config.yaml or STUDYVAULT_AUTH_JWKS_URL)")
	}
	if cfg.AuthIssuer == "" || cfg.AuthAudience == "" {
		return errors.New("config: authIssuer and authAudience are required")
	}
	if cfg.AccessURLTTLMinutes < 0 {
		return errors.New("config: accessUrlTtlMinutes must be >= 0")
	}
	if cfg.CreatorShareBps < 0 || cfg.PlatformShareBps < 0 {
		return errors.New("config: revenue shares must be >= 0")
	}
	if cfg.CreatorShareBps+cfg.PlatformShareBps > 10000 {
		return errors.New("config: creatorShareBps + platformShareBps must not exceed 10000")
	}
	if cfg.UnlockRateLimitPerMinute < 0 {
		return errors.New("config: unlockRateLimitPerMinute must be >= 0")
	}
	return nil
}
