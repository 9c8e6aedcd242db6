package emaconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mtwharmby/emacontrol/calib"
	"github.com/mtwharmby/emacontrol/coord"
	"github.com/mtwharmby/emacontrol/emaprotocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ emaprotocol.PeerResolver = (*Config)(nil)
	_ calib.PositionStore      = (*Config)(nil)
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[robot]
address = 10.0.0.5
port = 10000
timeout = 2.5
log_level = debug

[positions]
diffr_calib_xyz = 7.0,6.0,2.0
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", c.Address)
	assert.Equal(t, 10000, c.Port)
	assert.Equal(t, 2500*time.Millisecond, c.Timeout)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, path, c.Path())

	peer, err := c.ResolvePeer()
	require.NoError(t, err)
	assert.Equal(t, emaprotocol.Peer{Host: "10.0.0.5", Port: 10000}, peer)

	p, err := c.Position("diffr_calib_xyz")
	require.NoError(t, err)
	assert.Equal(t, coord.Point{X: 7, Y: 6, Z: 2}, p)
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "[robot]\naddress = host\n"))
	require.NoError(t, err)
	assert.Equal(t, emaprotocol.DefaultTimeout, c.Timeout)
	assert.Equal(t, DefaultLogLevel, c.LogLevel)
	assert.Zero(t, c.Port)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"PortNotNumber", "[robot]\nport = abc\n"},
		{"PortZero", "[robot]\nport = 0\n"},
		{"PortNegative", "[robot]\nport = -1\n"},
		{"PortTooLarge", "[robot]\nport = 70000\n"},
		{"TimeoutNotNumber", "[robot]\ntimeout = soon\n"},
		{"TimeoutZero", "[robot]\ntimeout = 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, emaprotocol.ErrConfiguration)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	assert.ErrorIs(t, err, emaprotocol.ErrConfiguration)
}

func TestLoadOrNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.ini")
	c, err := LoadOrNew(path)
	require.NoError(t, err)
	assert.Equal(t, path, c.Path())
	assert.Empty(t, c.PositionNames())
}

func TestResolvePeerIncomplete(t *testing.T) {
	c, err := Load(writeConfig(t, "[robot]\naddress = host\n"))
	require.NoError(t, err)

	_, err = c.ResolvePeer()
	assert.ErrorIs(t, err, emaprotocol.ErrConfiguration)
}

func TestApplyEnv(t *testing.T) {
	c, err := Load(writeConfig(t, "[robot]\naddress = host\nport = 1\n"))
	require.NoError(t, err)

	t.Setenv(EnvAddress, "robot.local")
	t.Setenv(EnvPort, "2000")
	t.Setenv(EnvTimeout, "3")
	t.Setenv(EnvLogLevel, "warn")
	require.NoError(t, c.ApplyEnv())

	assert.Equal(t, "robot.local", c.Address)
	assert.Equal(t, 2000, c.Port)
	assert.Equal(t, 3*time.Second, c.Timeout)
	assert.Equal(t, "warn", c.LogLevel)
}

func TestApplyEnvInvalid(t *testing.T) {
	c := New("unused.ini")
	t.Setenv(EnvPort, "port")
	assert.ErrorIs(t, c.ApplyEnv(), emaprotocol.ErrConfiguration)
}

func TestSetPositionWritesBack(t *testing.T) {
	path := writeConfig(t, "[robot]\naddress = host\nport = 10000\n")
	c, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, c.SetPosition("spin_calib_xyz", coord.Point{X: 100.25, Y: -50, Z: 20.125}))
	require.NoError(t, c.SetPosition("diffr_calib_xyz", coord.Point{X: 7, Y: 6, Z: 2}))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"diffr_calib_xyz", "spin_calib_xyz"}, reloaded.PositionNames())
	p, err := reloaded.Position("spin_calib_xyz")
	require.NoError(t, err)
	assert.Equal(t, coord.Point{X: 100.25, Y: -50, Z: 20.125}, p)
	assert.Equal(t, 10000, reloaded.Port)
}

func TestPositionErrors(t *testing.T) {
	c, err := Load(writeConfig(t, "[positions]\nbad = 1,2\n"))
	require.NoError(t, err)

	_, err = c.Position("missing")
	assert.ErrorIs(t, err, emaprotocol.ErrConfiguration)
	_, err = c.Position("bad")
	assert.ErrorIs(t, err, emaprotocol.ErrConfiguration)
}
