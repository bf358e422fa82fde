package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "clockpool", cfg.AppName)
	assert.Equal(t, 128, cfg.PoolSize)
	assert.Equal(t, FileStorage, cfg.Storage.Mode)
	assert.Equal(t, "./data", cfg.Storage.Dir)
	assert.Equal(t, "pages", cfg.Storage.Base)
	assert.True(t, cfg.WAL.Enabled)
	assert.Equal(t, "./data", cfg.WALDir())
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poolctl.yaml")
	content := `
pool_size: 16
storage:
  mode: memory
wal:
  enabled: false
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.PoolSize)
	assert.Equal(t, MemoryStorage, cfg.Storage.Mode)
	assert.False(t, cfg.WAL.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep defaults
	assert.Equal(t, "pages", cfg.Storage.Base)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("POOLCTL_POOL_SIZE", "7")
	t.Setenv("POOLCTL_STORAGE_DIR", "/tmp/pool")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.PoolSize)
	assert.Equal(t, "/tmp/pool", cfg.Storage.Dir)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	v := NewViper()
	v.Set("pool_size", 0)
	_, err := Decode(v)
	require.ErrorIs(t, err, ErrInvalidConfig)

	v = NewViper()
	v.Set("storage.mode", "tape")
	_, err = Decode(v)
	require.ErrorIs(t, err, ErrInvalidConfig)

	v = NewViper()
	v.Set("storage.mode", "memory")
	_, err = Decode(v)
	require.ErrorIs(t, err, ErrInvalidConfig, "memory mode with wal needs wal.dir")

	v = NewViper()
	v.Set("log.level", "loud")
	_, err = Decode(v)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_NewLogger(t *testing.T) {
	v := NewViper()
	v.Set("log.level", "warn")
	v.Set("log.format", "json")
	cfg, err := Decode(v)
	require.NoError(t, err)

	var buf bytes.Buffer
	log := cfg.NewLogger(&buf)
	log.Info("hidden")
	log.Warn("shown", "k", 1)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
}
