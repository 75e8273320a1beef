package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/wsserial/internal/config"
	"github.com/codefionn/wsserial/internal/ports"
)

func newTestCommand(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.Flags().AddFlagSet(rootCmd.Flags())
	return cmd, &out
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_port: 9000\nws_port: 9001\n"), 0644))

	oldConfig := configFile
	configFile = path
	t.Cleanup(func() {
		configFile = oldConfig
		_ = rootCmd.Flags().Set("ws-port", "0")
		rootCmd.Flags().Lookup("ws-port").Changed = false
	})

	cmd, _ := newTestCommand(t)
	require.NoError(t, cmd.Flags().Set("ws-port", "9100"))

	cfg, resolved, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, 9100, cfg.WSPort)
	assert.Equal(t, "127.0.0.1", cfg.BindAddress)
}

func TestLoadConfigRejectsEqualPorts(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Cleanup(func() {
		_ = rootCmd.Flags().Set("http-port", "0")
		rootCmd.Flags().Lookup("http-port").Changed = false
	})

	cmd, _ := newTestCommand(t)
	require.NoError(t, cmd.Flags().Set("http-port", "10081"))

	_, _, err := loadConfig(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestListPorts(t *testing.T) {
	cmd, out := newTestCommand(t)
	require.NoError(t, listPorts(cmd, ports.NewMemoryDriver("/dev/ttyUSB1", "/dev/ttyACM0")))
	assert.Contains(t, out.String(), "Serial ports:")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("/dev/ttyACM0")), bytes.Index(out.Bytes(), []byte("/dev/ttyUSB1")))
}

func TestListPortsEmpty(t *testing.T) {
	cmd, out := newTestCommand(t)
	require.NoError(t, listPorts(cmd, ports.NewMemoryDriver()))
	assert.Contains(t, out.String(), "No serial ports found")
}

func TestListPortsError(t *testing.T) {
	driver := ports.NewMemoryDriver()
	driver.FailList(errors.New("no sysfs"))

	cmd, _ := newTestCommand(t)
	assert.Error(t, listPorts(cmd, driver))
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsss_conf.yaml")
	cmd, out := newTestCommand(t)

	require.NoError(t, writeDefaultConfig(cmd, path, false))
	assert.Contains(t, out.String(), path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)

	err = writeDefaultConfig(cmd, path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	assert.NoError(t, writeDefaultConfig(cmd, path, true))
}
