package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"DATABASE_URL", "SYNC_BATCH_LIMIT", "SYNC_RETRY_LIMIT", "SYNC_LOOP_MIN_SECS", "SYNC_ENABLED",
	"ACOUSTIC_ENABLED", "DELIVERY_BACKEND", "ACOUSTIC_CLIENT_ID", "ACOUSTIC_CLIENT_SECRET",
	"ACOUSTIC_REFRESH_TOKEN", "ACOUSTIC_SERVER_NUMBER", "ACOUSTIC_MAIN_TABLE_ID",
	"ACOUSTIC_NEWSLETTER_TABLE_ID", "ACOUSTIC_TIMEOUT_SEC", "RABBITMQ_URL",
	"PROMETHEUS_PUSHGATEWAY_URL", "METRICS_PORT", "LOCK_FILE", "LOG_LEVEL", "LOG_FORMAT", "LOG_FILE",
}

// clearEnv unsets every setting for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	assert.Equal(t, 20, cfg.BatchSize)
	assert.Equal(t, 5, cfg.RetryLimit)
	assert.Equal(t, 5*time.Second, cfg.LoopMinDelay)
	assert.True(t, cfg.SyncEnabled)
	assert.True(t, cfg.DeliveryEnabled)
	assert.Equal(t, BackendAcoustic, cfg.DeliveryBackend)
	assert.Equal(t, 6, cfg.AcousticServerNumber)
	assert.Equal(t, 5*time.Second, cfg.AcousticTimeout)
	assert.Equal(t, 2112, cfg.MetricsPort)
	assert.NotEmpty(t, cfg.LockFile)
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SYNC_BATCH_LIMIT", "50")
	t.Setenv("SYNC_RETRY_LIMIT", "3")
	t.Setenv("SYNC_LOOP_MIN_SECS", "0")
	t.Setenv("ACOUSTIC_ENABLED", "false")
	t.Setenv("DELIVERY_BACKEND", "RabbitMQ")
	t.Setenv("ACOUSTIC_MAIN_TABLE_ID", "1364939")

	cfg := Load()
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 3, cfg.RetryLimit)
	assert.Zero(t, cfg.LoopMinDelay)
	assert.False(t, cfg.DeliveryEnabled)
	assert.Equal(t, BackendRabbitMQ, cfg.DeliveryBackend)
	assert.EqualValues(t, 1364939, cfg.AcousticMainTableID)
}

func TestLoad_Clamping(t *testing.T) {
	tests := []struct {
		name      string
		batch     string
		retry     string
		loop      string
		wantBatch int
		wantRetry int
		wantLoop  time.Duration
	}{
		{name: "above maximum", batch: "5000", retry: "10", loop: "1", wantBatch: MaxBatchSize, wantRetry: 10, wantLoop: time.Second},
		{name: "below minimum", batch: "0", retry: "0", loop: "-4", wantBatch: MinBatchSize, wantRetry: 1, wantLoop: 0},
		{name: "not a number", batch: "many", retry: "x", loop: "y", wantBatch: 20, wantRetry: 5, wantLoop: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("SYNC_BATCH_LIMIT", tt.batch)
			t.Setenv("SYNC_RETRY_LIMIT", tt.retry)
			t.Setenv("SYNC_LOOP_MIN_SECS", tt.loop)

			cfg := Load()
			assert.Equal(t, tt.wantBatch, cfg.BatchSize)
			assert.Equal(t, tt.wantRetry, cfg.RetryLimit)
			assert.Equal(t, tt.wantLoop, cfg.LoopMinDelay)
		})
	}
}

func TestValidateDelivery(t *testing.T) {
	complete := Config{
		DeliveryEnabled:           true,
		DeliveryBackend:           BackendAcoustic,
		AcousticClientID:          "id",
		AcousticClientSecret:      "secret",
		AcousticRefreshToken:      "token",
		AcousticMainTableID:       1,
		AcousticNewsletterTableID: 2,
	}
	require.NoError(t, complete.ValidateDelivery())

	missing := complete
	missing.AcousticClientSecret = ""
	missing.AcousticNewsletterTableID = 0
	err := missing.ValidateDelivery()
	require.Error(t, err)
	assert.Equal(t, "acoustic delivery requires ACOUSTIC_CLIENT_SECRET, ACOUSTIC_NEWSLETTER_TABLE_ID", err.Error())

	disabled := Config{DeliveryEnabled: false, DeliveryBackend: "carrier-pigeon"}
	assert.NoError(t, disabled.ValidateDelivery(), "nothing is required when delivery is off")

	rabbit := Config{DeliveryEnabled: true, DeliveryBackend: BackendRabbitMQ}
	assert.Error(t, rabbit.ValidateDelivery())
	rabbit.RabbitMQURL = "amqp://localhost"
	assert.NoError(t, rabbit.ValidateDelivery())

	unknown := Config{DeliveryEnabled: true, DeliveryBackend: "smtp"}
	assert.ErrorContains(t, unknown.ValidateDelivery(), "unknown DELIVERY_BACKEND")
}
