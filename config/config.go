// Package config loads player settings from defaults, a key = value file,
// and CONREEL_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/njyeung/conreel/audio"
	"github.com/njyeung/conreel/grid"
	"github.com/njyeung/conreel/pipeline"
)

// FileName is the config file looked up in the user config directory.
const FileName = "conplayer.conf"

// EnvPrefix is prepended to upper-cased keys for environment overrides.
const EnvPrefix = "CONREEL_"

// Config holds every configurable option. Enum values are kept as their
// names and parsed by Settings and Validate.
type Config struct {
	Color     string
	ColorProc string
	Charset   string
	Scaling   string
	Sync      string

	Scanlines      int
	ScanlineHeight int
	Brightness     int
	Volume         float64

	Width  int
	Height int
	Fill   bool

	VF  string
	SVF string
	AF  string

	Preload bool
	NoAudio bool
	NoKeys  bool
	NoClear bool

	AudioBackend string
	MetricsAddr  string
	LogFile      string
	LogLevel     string

	// Cell size override in pixels, for terminals that report none.
	FontWidth  int
	FontHeight int
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Color:          grid.ColorRGB.String(),
		ColorProc:      grid.ProcBoth.String(),
		Charset:        grid.DefaultCharset,
		Scaling:        pipeline.ScaleBicubic.String(),
		Sync:           pipeline.SyncEnabled.String(),
		ScanlineHeight: 1,
		Volume:         0.5,
		AudioBackend:   audio.Backends[0],
		LogFile:        filepath.Join(os.TempDir(), "conreel.log"),
		LogLevel:       "info",
	}
}

// DefaultPath returns the config file path in the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "conreel", FileName)
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is created with the defaults.
func Load(path string) (Config, error) {
	c := Default()

	conf, err := parseConf(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return c, fmt.Errorf("could not create config directory: %w", err)
		}
		if err := writeConf(path, c); err != nil {
			return c, fmt.Errorf("could not write default config: %w", err)
		}
	case err != nil:
		return c, fmt.Errorf("could not read config: %w", err)
	}

	var errs []error
	for _, kv := range conf {
		if err := c.Set(kv.key, kv.value); err != nil {
			errs = append(errs, fmt.Errorf("%s:%d: %w", path, kv.line, err))
		}
	}
	if err := c.ApplyEnv(); err != nil {
		errs = append(errs, err)
	}
	return c, errors.Join(errs...)
}

// ApplyEnv overrides options from CONREEL_<KEY> variables.
func (c *Config) ApplyEnv() error {
	var errs []error
	for _, f := range fields {
		v, ok := os.LookupEnv(EnvName(f.key))
		if !ok {
			continue
		}
		if err := f.set(c, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvName(f.key), err))
		}
	}
	return errors.Join(errs...)
}

// EnvName returns the environment variable overriding key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(key)
}

// Set assigns one option by its file key.
func (c *Config) Set(key, value string) error {
	i := slices.IndexFunc(fields, func(f field) bool { return f.key == key })
	if i < 0 {
		return fmt.Errorf("unknown key %q", key)
	}
	if err := fields[i].set(c, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// Option describes one key for command-line registration.
type Option struct {
	Key  string
	Help string
	Bool bool
}

// Options lists every key in file order.
func Options() []Option {
	opts := make([]Option, len(fields))
	for i, f := range fields {
		opts[i] = Option{Key: f.key, Help: f.comment, Bool: f.boolean}
	}
	return opts
}

// Validate reports every invalid option.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.Settings(); err != nil {
		errs = append(errs, err)
	}
	if c.Volume < 0 || c.Volume > 1 {
		errs = append(errs, fmt.Errorf("volume %g outside [0,1]", c.Volume))
	}
	if c.Brightness < -255 || c.Brightness > 255 {
		errs = append(errs, fmt.Errorf("brightness %d outside [-255,255]", c.Brightness))
	}
	if c.Scanlines < 0 || c.ScanlineHeight < 0 {
		errs = append(errs, errors.New("scanline values must not be negative"))
	}
	if c.Width < 0 || c.Height < 0 {
		errs = append(errs, errors.New("width and height must not be negative"))
	}
	if c.FontWidth < 0 || c.FontHeight < 0 {
		errs = append(errs, errors.New("font size must not be negative"))
	}
	if !slices.Contains(audio.Backends, c.AudioBackend) {
		errs = append(errs, fmt.Errorf("unknown audio backend %q", c.AudioBackend))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Settings converts the options used by the playback pipeline.
func (c Config) Settings() (pipeline.Settings, error) {
	s := pipeline.DefaultSettings()
	var errs []error
	var err error

	if s.Color, err = grid.ParseColorMode(c.Color); err != nil {
		errs = append(errs, err)
	}
	if s.Proc, err = grid.ParseColorProc(c.ColorProc); err != nil {
		errs = append(errs, err)
	}
	if s.Charset, err = grid.ParseCharset(c.Charset); err != nil {
		errs = append(errs, err)
	}
	if s.Scaling, err = pipeline.ParseScalingMode(c.Scaling); err != nil {
		errs = append(errs, err)
	}
	if s.Sync, err = pipeline.ParseSyncMode(c.Sync); err != nil {
		errs = append(errs, err)
	}

	s.Brightness = c.Brightness
	s.Scanlines = c.Scanlines
	s.ScanlineHeight = max(c.ScanlineHeight, 1)
	s.Width, s.Height = c.Width, c.Height
	s.Fill = c.Fill
	s.Preload = c.Preload
	s.NoAudio = c.NoAudio
	s.Volume = c.Volume
	return s, errors.Join(errs...)
}

// Level returns the parsed log level, info when invalid.
func (c Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
