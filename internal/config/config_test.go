package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "doly.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8090", cfg.Web.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
log:
  level: debug
sampling:
  tof: 100ms
  touch: 0s
fan:
  curve:
    - min_temp: 30
      percent: 10
    - min_temp: 60
      percent: 100
web:
  addr: 127.0.0.1:9000
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 100*time.Millisecond, cfg.Sampling.TOF)
	assert.Zero(t, cfg.Sampling.Touch)
	assert.Equal(t, Default().Sampling.IMU, cfg.Sampling.IMU, "unset keys keep their default")
	require.Len(t, cfg.Fan.Curve, 2)
	assert.Equal(t, uint8(100), cfg.Fan.Curve[1].Percent)
	assert.Equal(t, "127.0.0.1:9000", cfg.Web.Addr)
	assert.True(t, cfg.Web.Enabled)
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "web:\n  addr: :9000\n")
	t.Setenv("DOLY_WEB_ADDR", ":9100")
	t.Setenv("DOLY_COMMAND_QUEUE_SIZE", "4")
	t.Setenv("DOLY_TRACING_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Web.Addr)
	assert.Equal(t, 4, cfg.Command.QueueSize)
	assert.True(t, cfg.Tracing.Enabled)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tracing:\n  exporter: jaeger\nsim:\n  steps: 0\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter")
	assert.Contains(t, err.Error(), "steps must be positive")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDumpLoadsBack(t *testing.T) {
	want := Default()
	want.Sampling.Edge = 0
	want.Sim.Steps = 3

	data, err := Dump(want)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dispatch:")
	assert.Contains(t, string(data), "imu: 20ms")

	got, err := Load(writeFile(t, t.TempDir(), string(data)))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFind(t *testing.T) {
	assert.Equal(t, "explicit.yaml", Find("explicit.yaml"))

	t.Setenv("DOLY_CONFIG", "/etc/doly.yaml")
	assert.Equal(t, "/etc/doly.yaml", Find(""))
}

func TestWatch(t *testing.T) {
	path := writeFile(t, t.TempDir(), "log:\n  level: info\n")
	l, err := NewLoader(path)
	require.NoError(t, err)
	assert.Equal(t, path, l.File())

	levels := make(chan string, 16)
	l.Watch(func(cfg Config, err error) {
		if err != nil {
			return
		}
		select {
		case levels <- cfg.Log.Level:
		default:
		}
	})

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	// A truncate may be seen before the write, so wait for the new level.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case lvl := <-levels:
			if lvl == "debug" {
				return
			}
		case <-timeout:
			t.Fatal("no reload after the file changed")
		}
	}
}
