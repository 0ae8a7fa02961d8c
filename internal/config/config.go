// Package config loads service settings from .env, an optional YAML file and
// the process environment, in that order of increasing precedence.
package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"hackhub/internal/attachment"
	"hackhub/internal/eviction"
	"hackhub/internal/remote"
	"hackhub/internal/storage"
)

// devJWTSecret is only accepted while APP_ENV is development.
const devJWTSecret = "dev-secret-change-me"

const (
	MediumBolt   = "bolt"
	MediumRedis  = "redis"
	MediumMemory = "memory"
)

type Config struct {
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	Addr     string `mapstructure:"HTTP_ADDR"`

	CORSOrigins []string      `mapstructure:"CORS_ORIGINS"`
	JWTSecret   string        `mapstructure:"JWT_SECRET"`
	TokenTTL    time.Duration `mapstructure:"JWT_TTL"`

	// Remote structured store. Empty runs local only.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	Migrate     bool   `mapstructure:"DB_MIGRATE"`

	// R2 / S3
	R2Endpoint        string `mapstructure:"R2_ENDPOINT"`
	R2Region          string `mapstructure:"R2_REGION"`
	R2AccessKeyID     string `mapstructure:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey string `mapstructure:"R2_SECRET_ACCESS_KEY"`
	R2PublicURL       string `mapstructure:"R2_PUBLIC_URL"`
	BucketMessages    string `mapstructure:"BUCKET_MESSAGES"`
	BucketAvatars     string `mapstructure:"BUCKET_AVATARS"`
	BucketBlog        string `mapstructure:"BUCKET_BLOG"`

	LocalMedium    string `mapstructure:"LOCAL_MEDIUM"`
	LocalPath      string `mapstructure:"LOCAL_PATH"`
	LocalKey       string `mapstructure:"LOCAL_KEY"`
	LocalSecret    string `mapstructure:"LOCAL_SECRET"`
	LocalSoftLimit int64  `mapstructure:"LOCAL_SOFT_LIMIT"`
	LocalHardLimit int64  `mapstructure:"LOCAL_HARD_LIMIT"`
	RedisURL       string `mapstructure:"REDIS_URL"`

	LocalMaxBytes  int64    `mapstructure:"ATTACHMENT_LOCAL_MAX_BYTES"`
	RemoteMaxBytes int64    `mapstructure:"ATTACHMENT_REMOTE_MAX_BYTES"`
	MimePrefixes   []string `mapstructure:"ATTACHMENT_MIME_PREFIXES"`
	MimeTypes      []string `mapstructure:"ATTACHMENT_MIME_TYPES"`
	ImageMaxWidth  int      `mapstructure:"IMAGE_MAX_WIDTH"`
	ImageMaxHeight int      `mapstructure:"IMAGE_MAX_HEIGHT"`
	ImageQuality   int      `mapstructure:"IMAGE_QUALITY"`

	TextPerConversation  int           `mapstructure:"RETAIN_TEXT_PER_CONVERSATION"`
	FilesPerConversation int           `mapstructure:"RETAIN_FILES_PER_CONVERSATION"`
	FileMaxAge           time.Duration `mapstructure:"RETAIN_FILE_MAX_AGE"`
}

func setDefaults(v *viper.Viper) {
	buckets := remote.DefaultBuckets()
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("CORS_ORIGINS", []string{"*"})
	v.SetDefault("JWT_SECRET", devJWTSecret)
	v.SetDefault("JWT_TTL", 24*time.Hour)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MIGRATE", false)

	v.SetDefault("R2_ENDPOINT", "")
	v.SetDefault("R2_REGION", "auto")
	v.SetDefault("R2_ACCESS_KEY_ID", "")
	v.SetDefault("R2_SECRET_ACCESS_KEY", "")
	v.SetDefault("R2_PUBLIC_URL", "")
	v.SetDefault("BUCKET_MESSAGES", buckets.Messages)
	v.SetDefault("BUCKET_AVATARS", buckets.Avatars)
	v.SetDefault("BUCKET_BLOG", buckets.Blog)

	v.SetDefault("LOCAL_MEDIUM", MediumBolt)
	v.SetDefault("LOCAL_PATH", "hackhub_local.db")
	v.SetDefault("LOCAL_KEY", storage.DefaultKey)
	v.SetDefault("LOCAL_SECRET", "")
	v.SetDefault("LOCAL_SOFT_LIMIT", 12*attachment.MB)
	v.SetDefault("LOCAL_HARD_LIMIT", 16*attachment.MB)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")

	v.SetDefault("ATTACHMENT_LOCAL_MAX_BYTES", attachment.DefaultLocalMaxBytes)
	v.SetDefault("ATTACHMENT_REMOTE_MAX_BYTES", attachment.DefaultRemoteMaxBytes)
	v.SetDefault("ATTACHMENT_MIME_PREFIXES", attachment.DefaultMimePrefixes)
	v.SetDefault("ATTACHMENT_MIME_TYPES", attachment.DefaultMimeTypes)
	v.SetDefault("IMAGE_MAX_WIDTH", attachment.DefaultMaxWidth)
	v.SetDefault("IMAGE_MAX_HEIGHT", attachment.DefaultMaxHeight)
	v.SetDefault("IMAGE_QUALITY", attachment.DefaultQuality)

	v.SetDefault("RETAIN_TEXT_PER_CONVERSATION", eviction.DefaultTextPerConversation)
	v.SetDefault("RETAIN_FILES_PER_CONVERSATION", eviction.DefaultFilesPerConversation)
	v.SetDefault("RETAIN_FILE_MAX_AGE", eviction.DefaultFileMaxAge)
}

// Load reads .env when present, then file (YAML, optional), then the
// environment.
func Load(file string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LocalMedium = strings.ToLower(strings.TrimSpace(cfg.LocalMedium))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.LocalMedium {
	case MediumBolt, MediumRedis, MediumMemory:
	default:
		return fmt.Errorf("LOCAL_MEDIUM must be bolt, redis or memory, got %q", c.LocalMedium)
	}
	if c.LocalMaxBytes <= 0 || c.RemoteMaxBytes <= 0 {
		return fmt.Errorf("attachment ceilings must be positive")
	}
	if c.LocalMaxBytes > c.RemoteMaxBytes {
		return fmt.Errorf("local attachment ceiling %d exceeds remote ceiling %d", c.LocalMaxBytes, c.RemoteMaxBytes)
	}
	if c.LocalHardLimit > 0 && c.LocalSoftLimit > c.LocalHardLimit {
		return fmt.Errorf("LOCAL_SOFT_LIMIT %d exceeds LOCAL_HARD_LIMIT %d", c.LocalSoftLimit, c.LocalHardLimit)
	}
	if need := inlineEstimate(c.LocalMaxBytes); c.LocalHardLimit > 0 && c.LocalHardLimit < need {
		return fmt.Errorf("LOCAL_HARD_LIMIT %d cannot hold one %d byte attachment (needs %d)", c.LocalHardLimit, c.LocalMaxBytes, need)
	}
	if c.TextPerConversation <= 0 || c.FilesPerConversation <= 0 {
		return fmt.Errorf("retention counts must be positive, got text=%d files=%d", c.TextPerConversation, c.FilesPerConversation)
	}
	if c.FileMaxAge <= 0 {
		return fmt.Errorf("RETAIN_FILE_MAX_AGE must be positive, got %s", c.FileMaxAge)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.JWTSecret == devJWTSecret && !c.Development() {
		return fmt.Errorf("JWT_SECRET must be set when APP_ENV is %q", c.Env)
	}
	return nil
}

// inlineEstimate is the local store's size estimate for an attachment of n
// bytes once it is base64 encoded.
func inlineEstimate(n int64) int64 {
	return int64(base64.StdEncoding.EncodedLen(int(n))) * 2
}

// Development reports whether the service runs with developer defaults.
func (c *Config) Development() bool {
	return c.Env == "" || c.Env == "development"
}

// RemoteObjects reports whether object storage credentials are present.
func (c *Config) RemoteObjects() bool {
	return c.R2Endpoint != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != ""
}

func (c *Config) AttachmentLimits() attachment.Limits {
	return attachment.Limits{
		LocalMaxBytes:  c.LocalMaxBytes,
		RemoteMaxBytes: c.RemoteMaxBytes,
		MimePrefixes:   c.MimePrefixes,
		MimeTypes:      c.MimeTypes,
		MaxWidth:       c.ImageMaxWidth,
		MaxHeight:      c.ImageMaxHeight,
		Quality:        c.ImageQuality,
	}
}

func (c *Config) Retention() eviction.Limits {
	return eviction.Limits{
		TextPerConversation:  c.TextPerConversation,
		FilesPerConversation: c.FilesPerConversation,
		FileMaxAge:           c.FileMaxAge,
	}
}

func (c *Config) Buckets() remote.Buckets {
	return remote.Buckets{Messages: c.BucketMessages, Avatars: c.BucketAvatars, Blog: c.BucketBlog}
}
