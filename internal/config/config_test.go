package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garden-relay/internal/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
host: 0.0.0.0
port: 3001
upstream:
  api_address: https://vpaas.example.com
  client_id: client-1
  private_key_path: /secrets/key.pem
  timeout: 5s
detection:
  backend: process
  timeout: 12s
  process:
    command: ["python3", "scripts/detect_weeds.py"]
`)
	t.Setenv("RELAY_PORT", "4000")
	t.Setenv("RELAY_DETECTION_HOSTED_API_KEY", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 12*time.Second, cfg.Detection.Timeout)
	assert.Equal(t, []string{"python3", "scripts/detect_weeds.py"}, cfg.Detection.Process.Command)
	assert.Equal(t, "from-env", cfg.Detection.Hosted.APIKey)
	assert.Equal(t, int64(72<<20), cfg.Detection.MaxBodyBytes)
	assert.Equal(t, []string{"http://localhost:3000", "http://0.0.0.0:3000"}, cfg.CORS.AllowedOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))

	var cfgErr *types.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "config file", cfgErr.Field)
}

func TestValidate_ReportsEveryMissingField(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.CORS.AllowedOrigins = []string{"*"}

	err := cfg.Validate()
	require.Error(t, err)

	for _, field := range []string{
		"cors.allowed_origins",
		"upstream.api_address",
		"upstream.client_id",
		"upstream.private_key_path",
		"detection.hosted.endpoint",
		"detection.hosted.api_key",
	} {
		assert.Contains(t, err.Error(), field)
	}

	var cfgErr *types.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestValidate_UnknownBackend(t *testing.T) {
	d := DetectionConfig{Backend: "gpu", MaxBodyBytes: 1, Timeout: time.Second}
	err := d.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown backend "gpu"`)
}

func TestDefaultAllowedOrigins(t *testing.T) {
	assert.Equal(t, []string{"http://localhost:3000"}, DefaultAllowedOrigins("localhost"))
	assert.Equal(t, []string{"http://localhost:3000", "http://10.0.0.5:3000"}, DefaultAllowedOrigins("10.0.0.5"))
}
