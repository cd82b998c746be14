package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHostOptions(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "host.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadHostOptions(t *testing.T) {
	path := writeHostOptions(t, `
concurrent_flasher_limit = 2
shard_workers = 4
config_dirs = ["configs", "/etc/harness"]
devices = ["dev-1", "dev-2"]

[keystore]
redis_url = "redis://localhost:6379/0"
prefix = "harness:"

[log_saver]
endpoint = "minio.local:9000"
bucket = "logs"
access_key = "key"
secret_key = "secret"
use_ssl = true
`)
	opts, err := LoadHostOptions(path)
	require.NoError(t, err)
	assert.Equal(t, 2, opts.ConcurrentFlasherLimit)
	assert.Equal(t, 4, opts.ShardWorkers)
	assert.Equal(t, []string{"configs", "/etc/harness"}, opts.ConfigDirs)
	assert.Equal(t, []string{"dev-1", "dev-2"}, opts.Devices)
	assert.Equal(t, "redis://localhost:6379/0", opts.KeyStore.RedisURL)
	assert.Equal(t, "harness:", opts.KeyStore.Prefix)
	assert.Equal(t, "logs", opts.LogSaver.Bucket)
	assert.True(t, opts.LogSaver.UseSSL)
	assert.True(t, opts.LogSaver.Enabled())
}

func TestLoadHostOptions_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "flasher_limit = 2\n", "unknown host options"},
		{"bad syntax", "shard_workers = \n", "failed to read host options"},
		{"wrong type", "shard_workers = \"four\"\n", "failed to read host options"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadHostOptions(writeHostOptions(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadHostOptions(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestObjectStoreOptions_Enabled(t *testing.T) {
	assert.False(t, ObjectStoreOptions{}.Enabled())
	assert.False(t, ObjectStoreOptions{Endpoint: "minio:9000"}.Enabled())
	assert.True(t, ObjectStoreOptions{Endpoint: "minio:9000", Bucket: "logs"}.Enabled())
}
