package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, NotifyLog, cfg.NotifyBackend)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, time.Hour, cfg.RefundNotice)
	assert.Equal(t, "booking", cfg.RedisChannel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("NOTIFY_BACKEND", NotifyAMQP)
	t.Setenv("REFUND_NOTICE", "24h")
	t.Setenv("RETRY_MAX_ATTEMPTS", "9")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, NotifyAMQP, cfg.NotifyBackend)
	assert.Equal(t, 24*time.Hour, cfg.RefundNotice)
	assert.Equal(t, 9, cfg.RetryMaxAttempts)
}

func TestValidate(t *testing.T) {
	valid := App{RetryMaxAttempts: 1, NotifyBackend: NotifyNone}
	assert.NoError(t, valid.Validate())

	bad := App{RetryMaxAttempts: 0, NotifyBackend: "carrier-pigeon", RefundNotice: -time.Minute}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETRY_MAX_ATTEMPTS")
	assert.Contains(t, err.Error(), "NOTIFY_BACKEND")
	assert.Contains(t, err.Error(), "REFUND_NOTICE")
}
