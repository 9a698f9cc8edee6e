package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
env: development
database:
  host: localhost
  port: "5432"
  user: mm
  db: mm
exchange:
  apiKey: file-key
  secretKey: file-secret
  passphrase: file-pass
  baseURL: https://api.bitget.com
`)
	t.Setenv("BITGET_API_KEY", "env-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "env-key", cfg.Exchange.APIKey)
	require.Equal(t, "file-secret", cfg.Exchange.SecretKey)
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exchange.APIKey, cfg.Exchange.SecretKey, cfg.Exchange.Passphrase = "a", "b", "c"
	cfg.Database.Host = "localhost"
	cfg.Log.Level = "verbose"

	err := Validate(cfg)
	require.Error(t, err)
}

func TestDatabaseDSNPrefersURL(t *testing.T) {
	d := DatabaseConfig{URL: "postgres://explicit", Host: "h", User: "u", Password: "p", DB: "db", Port: "5432"}
	require.Equal(t, "postgres://explicit", d.DSN())

	d2 := DatabaseConfig{Host: "h", User: "u", Password: "p", DB: "db", Port: "5432"}
	require.Equal(t, "postgres://u:p@h:5432/db", d2.DSN())
}
