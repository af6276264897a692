package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"garden-relay/internal/signer/signertest"
	"garden-relay/internal/types"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	application := &cli.App{
		Name:           "garden-relay",
		Flags:          GlobalFlags(),
		Commands:       GetCommands(),
		Writer:         &out,
		ExitErrHandler: func(*cli.Context, error) {},
	}
	err := application.Run(append([]string{"garden-relay"}, args...))
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func relayConfig(t *testing.T, extra string) string {
	t.Helper()
	keyPath, _ := signertest.WriteKey(t)
	return writeFile(t, "config.yaml", `
host: localhost
port: 3001
logging:
  level: error
upstream:
  api_address: https://video.example.com
  client_id: relay-client
  private_key_path: `+keyPath+`
`+extra)
}

func TestCreateLogger_Levels(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"unknown": zapcore.InfoLevel,
	}
	for level, want := range tests {
		logger, err := createLogger(level, "json")
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(want), level)
		if want > zapcore.DebugLevel {
			assert.False(t, logger.Core().Enabled(want-1), level)
		}
	}
}

func TestTokenCommand_PrintsClaimsWithoutSignature(t *testing.T) {
	cfgPath := relayConfig(t, "")

	out, err := runCLI(t, "--config", cfgPath, "token")
	require.NoError(t, err)

	var claims tokenClaims
	require.NoError(t, json.Unmarshal([]byte(out), &claims))
	assert.Equal(t, "relay-client", claims.Issuer)
	assert.Equal(t, "relay-client", claims.Subject)
	assert.Equal(t, "https://video.example.com/oauth/token", claims.Audience)
	assert.Len(t, claims.Scope, 6)
	assert.NotEmpty(t, claims.ID)

	iat, err := time.Parse(time.RFC3339, claims.IssuedAt)
	require.NoError(t, err)
	exp, err := time.Parse(time.RFC3339, claims.ExpiresAt)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, exp.Sub(iat))

	// JWT из трех частей в выводе быть не должно
	assert.NotRegexp(t, `eyJ[\w-]+\.[\w-]+\.[\w-]+`, out)
}

func TestCheckConfigCommand(t *testing.T) {
	t.Setenv("RELAY_DETECTION_HOSTED_API_KEY", "from-environment")

	out, err := runCLI(t, "--config", relayConfig(t, `
detection:
  backend: hosted
  hosted:
    endpoint: https://detect.example.com/weeds/1
`), "check-config")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration OK")
	assert.Contains(t, out, "https://video.example.com/oauth/token")
	assert.Contains(t, out, "http://localhost:3000")
	assert.NotContains(t, out, "from-environment")
}

func TestCheckConfigCommand_ReportsConfigurationErrors(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "port: 3001\n")

	_, err := runCLI(t, "--config", cfgPath, "check-config")
	var cfgErr *types.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Contains(t, err.Error(), "upstream.client_id")
}

func TestCheckConfigCommand_ExplicitEnvFileMustExist(t *testing.T) {
	_, err := runCLI(t, "--env-file", filepath.Join(t.TempDir(), "missing.env"), "check-config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load env file")
}

func TestDetectCommand_ProcessBackend(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell detector scripts require a POSIX shell")
	}
	script := writeFile(t, "detect.sh", "#!/bin/sh\nprintf '{\"bytes\":%s}' \"$(wc -c < \"$1\" | tr -d ' ')\"\n")
	require.NoError(t, os.Chmod(script, 0o755))
	image := writeFile(t, "leaf.png", "12345678")

	cfgPath := relayConfig(t, `
detection:
  backend: process
  process:
    command: ["`+script+`"]
    temp_dir: `+t.TempDir()+`
`)

	out, err := runCLI(t, "--config", cfgPath, "detect", image)
	require.NoError(t, err)
	assert.JSONEq(t, `{"detections":{"bytes":8}}`, strings.TrimSpace(out))
}

func TestDetectCommand_RequiresFile(t *testing.T) {
	_, err := runCLI(t, "detect")
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Garden Relay")
}
