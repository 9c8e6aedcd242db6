// Package emaconfig reads and writes the robot configuration file.
//
// The file is INI formatted:
//
//	[robot]
//	address = 192.168.0.10
//	port = 10000
//	timeout = 60
//	log_level = info
//
//	[positions]
//	diffr_calib_xyz = 7.0,6.0,2.0
//
// Values from the environment (EMA_ADDRESS, EMA_PORT, EMA_TIMEOUT,
// EMA_LOG_LEVEL) override the file when ApplyEnv is called.
package emaconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mtwharmby/emacontrol/coord"
	"github.com/mtwharmby/emacontrol/emaprotocol"
	"gopkg.in/ini.v1"
)

const (
	// FileName is the name of the configuration file in the home directory.
	FileName = ".robot.ini"

	SectionRobot     = "robot"
	SectionPositions = "positions"

	DefaultLogLevel = "info"
)

// Environment variables overriding the file.
const (
	EnvAddress  = "EMA_ADDRESS"
	EnvPort     = "EMA_PORT"
	EnvTimeout  = "EMA_TIMEOUT"
	EnvLogLevel = "EMA_LOG_LEVEL"
)

// Config is the robot configuration.
type Config struct {
	Address  string
	Port     int
	Timeout  time.Duration
	LogLevel string

	path string
	file *ini.File
}

// DefaultPath returns ~/.robot.ini.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return FileName
	}
	return filepath.Join(home, FileName)
}

// New returns an empty configuration that saves to path.
func New(path string) *Config {
	return &Config{
		Timeout:  emaprotocol.DefaultTimeout,
		LogLevel: DefaultLogLevel,
		path:     path,
		file:     ini.Empty(),
	}
}

// Load reads the configuration file at path. A missing or unreadable file
// and an invalid [robot] section are configuration errors.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, emaprotocol.NewConfigurationError(fmt.Sprintf("cannot read %s", path), err)
	}

	c := New(path)
	c.file = f

	robot := f.Section(SectionRobot)
	if robot.HasKey("address") {
		c.Address = strings.TrimSpace(robot.Key("address").String())
	}

	if robot.HasKey("port") {
		port, err := parsePort(robot.Key("port").String())
		if err != nil {
			return nil, emaprotocol.NewConfigurationError(fmt.Sprintf("%s: [robot] port", path), err)
		}
		c.Port = port
	}
	if robot.HasKey("timeout") {
		timeout, err := parseSeconds(robot.Key("timeout").String())
		if err != nil {
			return nil, emaprotocol.NewConfigurationError(fmt.Sprintf("%s: [robot] timeout", path), err)
		}
		c.Timeout = timeout
	}
	if robot.HasKey("log_level") {
		if lvl := strings.TrimSpace(robot.Key("log_level").String()); lvl != "" {
			c.LogLevel = lvl
		}
	}
	return c, nil
}

// LoadOrNew loads path if it exists, and returns an empty configuration
// for path otherwise.
func LoadOrNew(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(path), nil
	}
	return Load(path)
}

// Path returns the file the configuration is saved to.
func (c *Config) Path() string {
	return c.path
}

// ApplyEnv overrides fields with the EMA_* environment variables that are
// set.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvAddress); ok && v != "" {
		c.Address = v
	}
	if v, ok := os.LookupEnv(EnvPort); ok && v != "" {
		port, err := parsePort(v)
		if err != nil {
			return emaprotocol.NewConfigurationError(EnvPort, err)
		}
		c.Port = port
	}
	if v, ok := os.LookupEnv(EnvTimeout); ok && v != "" {
		timeout, err := parseSeconds(v)
		if err != nil {
			return emaprotocol.NewConfigurationError(EnvTimeout, err)
		}
		c.Timeout = timeout
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	return nil
}

// ResolvePeer implements emaprotocol.PeerResolver.
func (c *Config) ResolvePeer() (emaprotocol.Peer, error) {
	if c.Address == "" || c.Port <= 0 {
		return emaprotocol.Peer{}, emaprotocol.NewConfigurationError(
			fmt.Sprintf("robot address and port must be set in [%s] of %s", SectionRobot, c.path), nil)
	}
	return emaprotocol.Peer{Host: c.Address, Port: c.Port}, nil
}

// Position returns the named [positions] entry.
func (c *Config) Position(name string) (coord.Point, error) {
	sec := c.file.Section(SectionPositions)
	if !sec.HasKey(name) {
		return coord.Point{}, emaprotocol.NewConfigurationError(fmt.Sprintf("no position %q in %s", name, c.path), nil)
	}
	p, err := parsePoint(sec.Key(name).String())
	if err != nil {
		return coord.Point{}, emaprotocol.NewConfigurationError(fmt.Sprintf("position %q", name), err)
	}
	return p, nil
}

// SetPosition stores the named position and saves the file.
func (c *Config) SetPosition(name string, p coord.Point) error {
	c.file.Section(SectionPositions).Key(name).SetValue(formatPoint(p))
	return c.Save()
}

// PositionNames returns the names of all stored positions, sorted.
func (c *Config) PositionNames() []string {
	names := c.file.Section(SectionPositions).KeyStrings()
	sort.Strings(names)
	return names
}

// Save writes the configuration back to its file.
func (c *Config) Save() error {
	robot := c.file.Section(SectionRobot)
	if c.Address != "" {
		robot.Key("address").SetValue(c.Address)
	}
	if c.Port > 0 {
		robot.Key("port").SetValue(strconv.Itoa(c.Port))
	}
	if err := c.file.SaveTo(c.path); err != nil {
		return fmt.Errorf("save %s: %w", c.path, err)
	}
	return nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

func parseSeconds(s string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("invalid timeout %q: want a positive number of seconds", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func parsePoint(s string) (coord.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return coord.Point{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v [3]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return coord.Point{}, fmt.Errorf("want x,y,z, got %q", s)
		}
		v[i] = f
	}
	return coord.Point{X: v[0], Y: v[1], Z: v[2]}, nil
}

func formatPoint(p coord.Point) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(p.X) + "," + f(p.Y) + "," + f(p.Z)
}
