package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultMatchesDocumentedDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 6379, cfg.Port)
	assert.Equal(t, 16, cfg.Databases)
	assert.Equal(t, 300, cfg.Timeout)
	assert.Equal(t, []SavePolicy{{3600, 1}, {300, 100}, {60, 10000}}, cfg.SaveParams)
}

func TestParseSkipsBlankAndCommentLines(t *testing.T) {
	cfg, err := parse(strings.NewReader("\n# comment\nport 7000\n"), "test")
	assert.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
}

func TestParseOverridesDefaults(t *testing.T) {
	src := `
port 7000
bind 127.0.0.1
timeout 60
databases 4
dir /var/lib/memkv
loglevel debug
logfile /var/log/memkv.log
daemonize yes
`
	cfg, err := parse(strings.NewReader(src), "test")
	assert.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Bind)
	assert.Equal(t, 60, cfg.Timeout)
	assert.Equal(t, 4, cfg.Databases)
	assert.Equal(t, "/var/lib/memkv", cfg.Dir)
	assert.Equal(t, LogDebug, cfg.LogLevel)
	assert.Equal(t, "/var/log/memkv.log", cfg.LogFile)
	assert.True(t, cfg.Daemonize)
}

func TestSaveDirectiveReplacesDefaultsEntirely(t *testing.T) {
	cfg, err := parse(strings.NewReader("save 10 1\nsave 20 2\n"), "test")
	assert.NoError(t, err)
	assert.Equal(t, []SavePolicy{{10, 1}, {20, 2}}, cfg.SaveParams)
}

func TestSlaveofSetsReplicationState(t *testing.T) {
	cfg, err := parse(strings.NewReader("slaveof 10.0.0.1 6380\n"), "test")
	assert.NoError(t, err)
	assert.True(t, cfg.IsSlave)
	assert.Equal(t, "10.0.0.1", cfg.MasterHost)
	assert.Equal(t, 6380, cfg.MasterPort)
}

func TestRejectsOutOfRangePort(t *testing.T) {
	_, err := parse(strings.NewReader("port 99999\n"), "test")
	assert.Error(t, err)
}

func TestRejectsTimeoutBelowOne(t *testing.T) {
	_, err := parse(strings.NewReader("timeout 0\n"), "test")
	assert.Error(t, err)
}

func TestRejectsUnknownDirective(t *testing.T) {
	_, err := parse(strings.NewReader("frobnicate yes\n"), "test")
	assert.Error(t, err)
}

func TestRejectsUnknownLogLevel(t *testing.T) {
	_, err := parse(strings.NewReader("loglevel verbose\n"), "test")
	assert.Error(t, err)
}
