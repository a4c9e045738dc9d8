package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaultsWhenSectionsAreAbsent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mongodb://127.0.0.1:27017", cfg.MongoURL)
	assert.Equal(t, "0.0.0.0", cfg.SFTP.Host)
	assert.Equal(t, "8022", cfg.SFTP.Port)
	assert.False(t, cfg.SFTP.NoAuth)
	require.Len(t, cfg.SFTP.Auths, 1)
	assert.Equal(t, "Anonymous", cfg.SFTP.Auths[0].Username)
	require.NotNil(t, cfg.SFTP.Auths[0].Password)
	assert.Equal(t, "susman", *cfg.SFTP.Auths[0].Password)
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
MongoDB:
  Host: db.internal
  Port: "27018"
SFTP:
  Host: 127.0.0.1
  Port: "2222"
  NoAuth: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mongodb://db.internal:27018", cfg.MongoURL)
	assert.Equal(t, "127.0.0.1", cfg.SFTP.Host)
	assert.Equal(t, "2222", cfg.SFTP.Port)
	assert.True(t, cfg.SFTP.NoAuth)
}

func TestLoadWebhooksSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "webhooks.txt", "https://a.example/hook\n\nhttps://b.example/hook\n")

	cfg := &Config{}
	require.NoError(t, cfg.LoadWebhooks(path))
	assert.Equal(t, []string{"https://a.example/hook", "https://b.example/hook"}, cfg.Webhooks)
}

func TestLoadBotTokenTrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bot_token", "  secret-token\n")

	cfg := &Config{}
	require.NoError(t, cfg.LoadBotToken(path))
	assert.Equal(t, "secret-token", cfg.BotToken)
}

func TestLoadPassphraseTrimsTrailingNewline(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "passphrase", "correct horse battery staple\n")

	cfg := &Config{}
	require.NoError(t, cfg.LoadPassphrase(path))
	assert.Equal(t, []byte("correct horse battery staple"), cfg.Passphrase)
}

func TestLoadHostKeyRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "host_key", "not a key")

	cfg := &Config{}
	err := cfg.LoadHostKey(path)
	assert.Error(t, err)
}
