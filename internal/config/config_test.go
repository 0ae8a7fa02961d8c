package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackhub/internal/attachment"
	"hackhub/internal/eviction"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, MediumBolt, cfg.LocalMedium)
	assert.Equal(t, attachment.DefaultLimits(), cfg.AttachmentLimits())
	assert.Equal(t, eviction.DefaultLimits(), cfg.Retention())
	assert.Equal(t, "message-attachments", cfg.Buckets().Messages)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.False(t, cfg.RemoteObjects())
	assert.True(t, cfg.Development())
	assert.Equal(t, int64(16*attachment.MB), cfg.LocalHardLimit)
	assert.GreaterOrEqual(t, cfg.LocalHardLimit, inlineEstimate(cfg.LocalMaxBytes))
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("LOCAL_MEDIUM", "Redis")
	t.Setenv("ATTACHMENT_LOCAL_MAX_BYTES", "1048576")
	t.Setenv("RETAIN_FILE_MAX_AGE", "48h")
	t.Setenv("RETAIN_TEXT_PER_CONVERSATION", "5")
	t.Setenv("CORS_ORIGINS", "https://a.test,https://b.test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, MediumRedis, cfg.LocalMedium)
	assert.Equal(t, int64(1048576), cfg.LocalMaxBytes)
	assert.Equal(t, 48*time.Hour, cfg.FileMaxAge)
	assert.Equal(t, 5, cfg.Retention().TextPerConversation)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSOrigins)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hackhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_addr: \":9090\"\nlocal_medium: memory\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, MediumMemory, cfg.LocalMedium)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	t.Setenv("LOCAL_MEDIUM", "floppy")
	_, err := Load("")
	assert.ErrorContains(t, err, "LOCAL_MEDIUM")

	t.Setenv("LOCAL_MEDIUM", "memory")
	t.Setenv("ATTACHMENT_LOCAL_MAX_BYTES", "999999999")
	_, err = Load("")
	assert.ErrorContains(t, err, "exceeds remote ceiling")
}

func TestValidateRejectsEmptyRetention(t *testing.T) {
	cases := map[string]string{
		"RETAIN_TEXT_PER_CONVERSATION":  "0",
		"RETAIN_FILES_PER_CONVERSATION": "-1",
		"RETAIN_FILE_MAX_AGE":           "0s",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "must be positive")
		})
	}
}

func TestValidateRejectsTinyHardLimit(t *testing.T) {
	t.Setenv("LOCAL_SOFT_LIMIT", "1048576")
	t.Setenv("LOCAL_HARD_LIMIT", "2097152")
	_, err := Load("")
	assert.ErrorContains(t, err, "cannot hold one")
}

func TestProductionNeedsOwnSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	_, err := Load("")
	assert.ErrorContains(t, err, "JWT_SECRET must be set")

	t.Setenv("JWT_SECRET", "s3cret-from-vault")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Development())
}
