package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blemgr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "devices.yaml", cfg.RegistryPath)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.True(t, cfg.ReadAllOnConnect)
	assert.Equal(t, 256, cfg.EventHistory)
	assert.Empty(t, cfg.CustomCharacteristics)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err, "missing config MUST NOT be an error")
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	// GOAL: File values win, untouched keys keep their defaults
	//
	// TEST SCENARIO: partial yaml with nested retry block → set keys overridden, others default

	path := writeConfig(t, `
log_level: debug
registry_path: /tmp/devices.cbor
read_all_on_connect: false
retry:
  max_attempts: 5
custom_characteristics:
  - uuid: 12345678-1234-5678-1234-56789abcdef0
    key: answer
    name: Answer
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.Equal(t, "/tmp/devices.cbor", cfg.RegistryPath)
	assert.False(t, cfg.ReadAllOnConnect, "explicit false MUST override the true default")
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay, "unset nested keys MUST keep defaults")
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	require.Len(t, cfg.CustomCharacteristics, 1)
	assert.Equal(t, "answer", cfg.CustomCharacteristics[0].Key)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad level", "log_level: chatty\n"},
		{"bad yaml", "log_level: [\n"},
		{"zero scan timeout", "scan_timeout: 0s\n"},
		{"custom without uuid", "custom_characteristics:\n  - key: x\n"},
		{"both formatter sources", "custom_characteristics:\n  - uuid: 2a19\n    formatter: x\n    formatter_file: y\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{"debug", "debug", logrus.DebugLevel},
		{"warn", "warn", logrus.WarnLevel},
		{"unparsable falls back to info", "chatty", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.Equal(t, tt.want, logger.GetLevel())
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestCompileCustomCharacteristics(t *testing.T) {
	// GOAL: Configured Lua formatters become working manager value formatters
	//
	// TEST SCENARIO: one inline formatter, one plain entry → first formats bytes, second has no formatter

	cfg := DefaultConfig()
	cfg.CustomCharacteristics = []CustomCharacteristic{
		{UUID: "2a19", Key: "battery", Formatter: "function format(v) return string.byte(v, 1) .. '%' end"},
		{UUID: "12345678-1234-5678-1234-56789abcdef0", Key: "answer"},
	}

	regs, closeAll, err := cfg.CompileCustomCharacteristics(logrus.New())
	require.NoError(t, err)
	defer closeAll()

	require.Len(t, regs, 2)
	require.NotNil(t, regs[0].Formatter)
	out, err := regs[0].Formatter([]byte{42})
	require.NoError(t, err)
	assert.Equal(t, "42%", out)
	assert.Nil(t, regs[1].Formatter)
}

func TestCompileCustomCharacteristicsReportsScriptErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CustomCharacteristics = []CustomCharacteristic{
		{UUID: "2a19", Formatter: "function format(v"},
	}

	_, _, err := cfg.CompileCustomCharacteristics(logrus.New())
	assert.Error(t, err, "syntax errors MUST surface at load time")
}
