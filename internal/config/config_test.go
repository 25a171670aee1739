package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PROFILE_WRITE_ATOMIC", "REDIS_ADDR", "OTEL_SAMPLING_RATIO", "SNOWFLAKE_NODE_ID"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.True(t, cfg.Profile.AtomicWrites)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 0.1, cfg.Telemetry.SamplingRatio)
	assert.EqualValues(t, 1, cfg.NodeID)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PROFILE_WRITE_ATOMIC", "off")
	t.Setenv("REDIS_ADDR", " localhost:6379 ")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "HTTP")
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "https://media.example.com/")
	t.Setenv("PROFILE_WRITES_PER_MINUTE", "not-a-number")

	cfg := Load()
	assert.False(t, cfg.Profile.AtomicWrites)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 0.5, cfg.Telemetry.SamplingRatio)
	assert.Equal(t, "http", cfg.Telemetry.OtelProtocol)
	assert.Equal(t, "https://media.example.com", cfg.ObjectStorage.PublicBaseURL)
	assert.Equal(t, 30, cfg.Profile.WritesPerMinute)
}
