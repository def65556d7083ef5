package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Equal(t, "/metrics", cfg.Observability.PrometheusPath)
	assert.Equal(t, "X-API-Key", cfg.Auth.Header)
	assert.Equal(t, 60, cfg.Limits.Default.RequestsPerMinute)
	assert.Equal(t, "ip", cfg.Limits.KeyBy)
	assert.Equal(t, time.Minute, cfg.Limits.GCInterval())
}

func TestLoad_Limits(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
limits:
  default:
    requests_per_second: 20
    burst: 50
  key_by: api_key
  gc_interval_ms: 5000
  idle_threshold_ms: 30000
  max_keys: 10000
routes:
  - id: billing
    match:
      path_prefix: /billing
      methods: [GET, POST]
    upstream:
      url: http://127.0.0.1:9001
    limit:
      requests_per_second: 2
      burst: 5
`))
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Limits.Default.RequestsPerSecond)
	assert.Equal(t, 50, cfg.Limits.Default.Burst)
	assert.Equal(t, "api_key", cfg.Limits.KeyBy)
	assert.Equal(t, 5*time.Second, cfg.Limits.GCInterval())
	assert.Equal(t, 30*time.Second, cfg.Limits.IdleThreshold())
	assert.Equal(t, int64(10000), cfg.Limits.MaxKeys)

	require.Len(t, cfg.Routes, 1)
	rt := cfg.Routes[0]
	require.NotNil(t, rt.Limit)
	assert.Equal(t, 2, rt.Limit.RequestsPerSecond)
	assert.Equal(t, 5, rt.Limit.Burst)
	assert.Equal(t, 3000, rt.Upstream.TimeoutMS)
}

func TestLoad_UnknownKeyBy(t *testing.T) {
	_, err := Load(writeConfig(t, "limits:\n  key_by: session\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
