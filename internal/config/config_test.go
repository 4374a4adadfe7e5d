package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearPortalEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "BACKEND_URL", "BACKEND_PATIENT_ID", "BACKEND_TIMEOUT", "BACKEND_POLL_INTERVAL",
		"LOG_LEVEL", "PORTAL_REPLY_DELAY", "PORTAL_REPLY_TIMEOUT", "PORTAL_UPLOAD_DELAY",
		"PORTAL_MAX_UPLOAD_BYTES", "PORTAL_IDLE_TTL", "PORTAL_ALLOWED_ORIGINS",
		"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "Model",
		"ARK_TEMPERATURE", "ARK_TOP_P", "ARK_MAX_TOKENS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearPortalEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Backend.Remote())
	assert.Equal(t, "local-patient", cfg.Backend.PatientID)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Portal.ReplyDelay)
	assert.Equal(t, 2*time.Second, cfg.Portal.UploadDelay)
	assert.Equal(t, int64(10<<20), cfg.Portal.MaxUploadBytes)
	assert.Equal(t, []string{"*"}, cfg.Portal.AllowedOrigins)
	assert.False(t, cfg.AI.Enabled())
	assert.Nil(t, cfg.AI.Temperature)
}

func TestLoadOverrides(t *testing.T) {
	clearPortalEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("BACKEND_URL", " https://api.example.com/ ")
	t.Setenv("BACKEND_TIMEOUT", "3s")
	t.Setenv("PORTAL_REPLY_DELAY", "0s")
	t.Setenv("PORTAL_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("Model", "doubao")
	t.Setenv("ARK_TEMPERATURE", "0.4")
	t.Setenv("ARK_MAX_TOKENS", "256")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "https://api.example.com", cfg.Backend.URL)
	assert.True(t, cfg.Backend.Remote())
	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout)
	assert.Zero(t, cfg.Portal.ReplyDelay)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Portal.AllowedOrigins)
	assert.True(t, cfg.AI.Enabled())
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.4, *cfg.AI.Temperature, 1e-9)
	require.NotNil(t, cfg.AI.MaxTokens)
	assert.Equal(t, 256, *cfg.AI.MaxTokens)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"port with space":    {"PORT", "80 80"},
		"bad duration":       {"PORTAL_REPLY_TIMEOUT", "soon"},
		"non positive limit": {"PORTAL_MAX_UPLOAD_BYTES", "0"},
		"negative delay":     {"PORTAL_UPLOAD_DELAY", "-1s"},
		"bad temperature":    {"ARK_TEMPERATURE", "warm"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearPortalEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestAIConfigNewChatModelRequiresCredentials(t *testing.T) {
	_, err := AIConfig{Model: "doubao"}.NewChatModel(t.Context())
	assert.Error(t, err)
}
