package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, 0.7, cfg.Policy.DetectionThreshold)
	assert.Equal(t, 8, cfg.Policy.EngagementFloor)
	assert.Equal(t, 15, cfg.Policy.MessageCeiling)
	assert.Equal(t, "sqlite", cfg.Session.Store)
	assert.Equal(t, "Ramesh Kumar", cfg.Persona.Name)
}

func TestLoadParsesAndAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  apiKey: secret123
llm:
  provider: gemini
  apiKey: gkey
  model: gemini-pro
callback:
  url: https://guvi.example/callback
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "secret123", cfg.Server.APIKey)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 30, cfg.LLM.TimeoutSeconds, "default applied")
	assert.Equal(t, "https://guvi.example/callback", cfg.Callback.URL)
	assert.Equal(t, 10, cfg.Callback.TimeoutSeconds, "default applied")
	assert.Equal(t, 8, cfg.Policy.EngagementFloor, "default applied")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	require.Error(t, err)

	var cerr *ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SNARE_TEST_SECRET", "hunter2")

	assert.Equal(t, "hunter2", expandEnvVars("${SNARE_TEST_SECRET}"))
	assert.Equal(t, "prefix-hunter2", expandEnvVars("prefix-${SNARE_TEST_SECRET}"))
	assert.Equal(t, "${UNSET_VAR_XYZ}", expandEnvVars("${UNSET_VAR_XYZ}"), "unset vars left as-is")
	assert.Equal(t, "plain", expandEnvVars("plain"))
}

func TestLoadExpandsSensitiveFields(t *testing.T) {
	t.Setenv("SNARE_TEST_LLM_KEY", "sk-abc")
	path := writeConfig(t, `
llm:
  provider: claude
  apiKey: ${SNARE_TEST_LLM_KEY}
  model: claude-sonnet
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-abc", cfg.LLM.APIKey)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SNARE_SERVER_PORT", "7001")
	t.Setenv("SNARE_API_KEY", "env-key")
	t.Setenv("SNARE_LOG_LEVEL", "DEBUG")
	t.Setenv("SNARE_CALLBACK_URL", "https://env.example/cb")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, "env-key", cfg.Server.APIKey)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "https://env.example/cb", cfg.Callback.URL)
}

func TestEmailChannelDefaults(t *testing.T) {
	path := writeConfig(t, `
channels:
  email:
    imapHost: imap.example.com
    smtpHost: smtp.example.com
    address: decoy@example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Channels.Email)

	assert.Equal(t, 993, cfg.Channels.Email.IMAPPort)
	assert.Equal(t, 587, cfg.Channels.Email.SMTPPort)
	assert.Equal(t, "INBOX", cfg.Channels.Email.Mailbox)
	assert.Equal(t, 60, cfg.Channels.Email.PollSeconds)
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")

	raw, err := LoadRaw(path)
	require.NoError(t, err)

	segs, err := ParseConfigPath("server.port")
	require.NoError(t, err)
	val, ok := GetValueAtPath(raw, segs)
	require.True(t, ok)
	assert.Equal(t, 9000, val)

	SetValueAtPath(raw, []string{"llm", "model"}, "claude-sonnet")
	require.NoError(t, SaveRaw(path, raw))

	raw2, err := LoadRaw(path)
	require.NoError(t, err)
	val, ok = GetValueAtPath(raw2, []string{"llm", "model"})
	require.True(t, ok)
	assert.Equal(t, "claude-sonnet", val)
}
