package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OVH_AI_ENDPOINTS_ACCESS_TOKEN", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("IMAGE_ENDPOINT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.LineageLimit)
	assert.Equal(t, 60*time.Second, cfg.ImageTimeout)
	assert.False(t, cfg.HasTextProvider())
	assert.False(t, cfg.HasImageProvider())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("OVH_AI_ENDPOINTS_ACCESS_TOKEN", "token")
	t.Setenv("IMAGE_TIMEOUT", "5s")
	t.Setenv("S3_BUCKET", "images")
	t.Setenv("S3_ACCESS_KEY", "a")
	t.Setenv("S3_SECRET_KEY", "b")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.HasTextProvider())
	assert.True(t, cfg.HasImageStorage())
	assert.Equal(t, 5*time.Second, cfg.ImageTimeout)
}

func TestLoadRejectsBadLineage(t *testing.T) {
	t.Setenv("LINEAGE_LIMIT", "0")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("LINEAGE_LIMIT", "ten")
	_, err = Load()
	assert.Error(t, err)
}
