package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileWithDefaults(t *testing.T) {
	path := writeConfig(t, `
metadata:
  type: badger
blob:
  type: localfs
  localfs:
    root: /var/lib/kurodrive
auth:
  secret: `+secret+`
logging:
  level: DEBUG
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Metadata.Type)
	assert.Equal(t, "/var/lib/kurodrive", cfg.Blob.LocalFS.Root)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ":2525", cfg.Server.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Server.RequestTimeout)
	assert.Equal(t, int64(500<<20), cfg.Quota.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxResults)
	assert.Equal(t, "best_effort", cfg.Blob.Policy)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 1000, cfg.Metadata.CascadeBatch)
	assert.Equal(t, 100_000, cfg.Metadata.Badger.SearchScanLimit)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KURODRIVE_AUTH_SECRET", secret)
	t.Setenv("KURODRIVE_BLOB_S3_BUCKET", "drive")
	t.Setenv("KURODRIVE_BLOB_S3_ACCESS_KEY_ID", "key")
	t.Setenv("KURODRIVE_BLOB_S3_SECRET_ACCESS_KEY", "secret")
	t.Setenv("KURODRIVE_DATABASE_PORT", "6432")
	t.Setenv("KURODRIVE_SHARE_PURGE_INTERVAL", "15m")
	t.Setenv("KURODRIVE_BLOB_POLICY", "strict")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "drive", cfg.Blob.S3.Bucket)
	assert.Equal(t, 6432, cfg.Database.Port)
	assert.Equal(t, 15*time.Minute, cfg.Share.PurgeInterval)
	assert.Equal(t, "strict", cfg.Blob.Policy)
	assert.Equal(t, "host=localhost port=6432 user=postgres password= dbname=kurodrive sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, "postgres://postgres:@localhost:6432/kurodrive?sslmode=disable", cfg.Database.URL())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{}, "Secret"},
		{"s3 without bucket", map[string]string{"KURODRIVE_AUTH_SECRET": secret}, "bucket is required"},
		{"unknown policy", map[string]string{
			"KURODRIVE_AUTH_SECRET": secret, "KURODRIVE_BLOB_TYPE": "localfs", "KURODRIVE_BLOB_POLICY": "sometimes",
		}, "Policy"},
		{"unknown metadata", map[string]string{
			"KURODRIVE_AUTH_SECRET": secret, "KURODRIVE_BLOB_TYPE": "localfs", "KURODRIVE_METADATA_TYPE": "sqlite",
		}, "Metadata.Type"},
		{"zero cascade batch", map[string]string{
			"KURODRIVE_AUTH_SECRET": secret, "KURODRIVE_BLOB_TYPE": "localfs", "KURODRIVE_METADATA_CASCADE_BATCH": "0",
		}, "CascadeBatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_BrokenFile(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to read config file")
}
