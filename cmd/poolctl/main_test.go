package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_MemoryMode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--storage-mode=memory",
		"--wal=false",
		"--pool-size=4",
		"--workers=4",
		"--ops=200",
		"--pages=16",
		"--log-level=warn",
	}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "pool:        4 frames (16 KiB), storage=memory")
	assert.Contains(t, out, "operations:  800")
	assert.Contains(t, out, "verified:    16 pages")
}

func TestRun_FileModeWithWAL(t *testing.T) {
	dir := t.TempDir()
	args := []string{
		"--data-dir=" + dir,
		"--pool-size=3",
		"--workers=2",
		"--ops=100",
		"--pages=6",
		"--log-level=error",
	}

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), args, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "verified:    6 pages")

	info, err := os.Stat(filepath.Join(dir, "wal.log"))
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	_, err = os.Stat(filepath.Join(dir, "pages"))
	require.NoError(t, err)

	// A second run replays the log and keeps going.
	stdout.Reset()
	require.NoError(t, run(context.Background(), args, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "verified:    6 pages")
}

func TestRun_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poolctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool_size: 2\nstorage:\n  mode: memory\nwal:\n  enabled: false\nlog:\n  level: error\n"), 0o644))

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--config=" + path, "--workers=2", "--ops=50", "--pages=4"}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())
	assert.Contains(t, stdout.String(), "pool:        2 frames")
}

func TestRun_InvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--storage-mode=tape"}, &stdout, &stderr)
	require.Error(t, err)
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	err := run(ctx, []string{"--storage-mode=memory", "--wal=false", "--log-level=error"}, &stdout, &stderr)
	require.ErrorIs(t, err, context.Canceled)
}
