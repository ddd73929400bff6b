package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Session   SessionConfig
	Redis     RedisConfig
	MongoDB   MongoDBConfig
	MinIO     MinIOConfig
	File      FileConfig
	RateLimit RateLimitConfig
	LogLevel  string
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// SessionConfig controls the session store
type SessionConfig struct {
	Backend        string // memory | file | redis | mongo | minio
	StorageKey     string
	UserID         string
	LoginDelay     time.Duration
	MergePolicy    string // always | same-email
	AvatarTemplate string
	RequireEmail   bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Prefix   string
}

type MongoDBConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

type FileConfig struct {
	Dir string
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

var (
	backends      = map[string]bool{"memory": true, "file": true, "redis": true, "mongo": true, "minio": true}
	mergePolicies = map[string]bool{"always": true, "same-email": true}
)

// LoadConfig loads configuration from environment variables and an optional .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5002")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("SESSION_BACKEND", "memory")
	viper.SetDefault("SESSION_STORAGE_KEY", "user")
	viper.SetDefault("SESSION_USER_ID", "1")
	viper.SetDefault("SESSION_LOGIN_DELAY_MS", 1000)
	viper.SetDefault("SESSION_MERGE_POLICY", "always")
	viper.SetDefault("SESSION_AVATAR_URL_TEMPLATE", "")
	viper.SetDefault("SESSION_REQUIRE_EMAIL", false)

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_PREFIX", "uikit:")

	viper.SetDefault("MONGODB_DATABASE", "uikit")
	viper.SetDefault("MONGODB_COLLECTION", "session_kv")
	viper.SetDefault("MONGODB_TIMEOUT", 10)

	viper.SetDefault("MINIO_BUCKET", "uikit-session")
	viper.SetDefault("MINIO_USE_SSL", false)
	viper.SetDefault("MINIO_PREFIX", "session/")

	viper.SetDefault("SESSION_FILE_DIR", "./data")

	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_USE_REDIS", false)
	viper.SetDefault("RATE_LIMIT_RPS", 2.0)
	viper.SetDefault("RATE_LIMIT_BURST", 5)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			CORSOrigins:  splitList(viper.GetString("CORS_ORIGINS")),
		},
		Session: SessionConfig{
			Backend:        strings.ToLower(strings.TrimSpace(viper.GetString("SESSION_BACKEND"))),
			StorageKey:     viper.GetString("SESSION_STORAGE_KEY"),
			UserID:         viper.GetString("SESSION_USER_ID"),
			LoginDelay:     time.Duration(viper.GetInt("SESSION_LOGIN_DELAY_MS")) * time.Millisecond,
			MergePolicy:    strings.ToLower(strings.TrimSpace(viper.GetString("SESSION_MERGE_POLICY"))),
			AvatarTemplate: viper.GetString("SESSION_AVATAR_URL_TEMPLATE"),
			RequireEmail:   viper.GetBool("SESSION_REQUIRE_EMAIL"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
			Prefix:   viper.GetString("REDIS_PREFIX"),
		},
		MongoDB: MongoDBConfig{
			URI:        viper.GetString("MONGODB_URI"),
			Database:   viper.GetString("MONGODB_DATABASE"),
			Collection: viper.GetString("MONGODB_COLLECTION"),
			Timeout:    time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		MinIO: MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: viper.GetString("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
			Prefix:    viper.GetString("MINIO_PREFIX"),
		},
		File: FileConfig{
			Dir: viper.GetString("SESSION_FILE_DIR"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with
func (c *Config) Validate() error {
	if !backends[c.Session.Backend] {
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.Session.Backend)
	}
	if !mergePolicies[c.Session.MergePolicy] {
		return fmt.Errorf("unknown SESSION_MERGE_POLICY %q", c.Session.MergePolicy)
	}
	if c.Session.StorageKey == "" {
		return fmt.Errorf("SESSION_STORAGE_KEY must not be empty")
	}
	if c.Session.LoginDelay < 0 {
		return fmt.Errorf("SESSION_LOGIN_DELAY_MS must not be negative")
	}
	switch c.Session.Backend {
	case "mongo":
		if c.MongoDB.URI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo backend")
		}
	case "minio":
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required for the minio backend")
		}
	}
	return nil
}

// RedisAddr returns host:port for the Redis client
func (c *Config) RedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
