// Package config loads focusd settings from a YAML file and the environment.
//
// Precedence, lowest first: built-in defaults, the YAML file, environment
// variables, command-line flags (applied by the caller).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-focus/pkg/blink"
	"github.com/teslashibe/go-focus/pkg/camera"
	"github.com/teslashibe/go-focus/pkg/eeg"
	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/hub"
	"github.com/teslashibe/go-focus/pkg/producer"
)

// Default server settings.
const (
	DefaultHost = "localhost"
	DefaultPort = 6969
)

// EEG source kinds.
const (
	EEGSynthetic = "synthetic"
	EEGMQTT      = "mqtt"
	EEGNone      = "none"
)

// Config is the complete daemon configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Hub    HubConfig    `yaml:"hub"`
	Blink  BlinkConfig  `yaml:"blink"`
	Focus  FocusConfig  `yaml:"focus"`
	Camera CameraConfig `yaml:"camera"`
	EEG    EEGConfig    `yaml:"eeg"`
}

// ServerConfig is the subscriber listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig selects level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// HubConfig tunes the broadcaster.
type HubConfig struct {
	QueueSize       int           `yaml:"queue_size"`
	FocusStaleAfter time.Duration `yaml:"focus_stale_after"`
	BlinkStaleAfter time.Duration `yaml:"blink_stale_after"`
}

// BlinkConfig tunes the blink detector and producer.
type BlinkConfig struct {
	Autostart     bool          `yaml:"autostart"`
	Threshold     float64       `yaml:"threshold"`
	ConsecFrames  int           `yaml:"consec_frames"`
	RateWindow    time.Duration `yaml:"rate_window"`
	UpdateEvery   time.Duration `yaml:"update_every"`
	FrameInterval time.Duration `yaml:"frame_interval"`
}

// FocusConfig tunes the focus calculator.
type FocusConfig struct {
	WindowLen   time.Duration `yaml:"window"`
	UpdateEvery time.Duration `yaml:"update_every"`
	HistorySize int           `yaml:"history_size"`
	MinHistory  int           `yaml:"min_history"`
}

// CameraConfig is the webcam config plus an optional preset applied first.
type CameraConfig struct {
	Preset        string `yaml:"preset"`
	camera.Config `yaml:",inline"`
}

// EEGConfig selects and configures the sample source.
type EEGConfig struct {
	Source     string `yaml:"source"` // synthetic, mqtt, none
	eeg.Config `yaml:",inline"`
}

// Default returns the built-in configuration.
func Default() Config {
	b := blink.DefaultConfig()
	bp := producer.DefaultBlinkConfig()
	f := focus.DefaultConfig()
	h := hub.DefaultConfig()
	return Config{
		Server: ServerConfig{Host: DefaultHost, Port: DefaultPort},
		Log:    LogConfig{Level: "info", Format: "text"},
		Hub: HubConfig{
			QueueSize:       h.QueueSize,
			FocusStaleAfter: h.FocusStaleAfter,
			BlinkStaleAfter: h.BlinkStaleAfter,
		},
		Blink: BlinkConfig{
			Threshold:     b.Threshold,
			ConsecFrames:  b.ConsecFrames,
			RateWindow:    b.RateWindow,
			UpdateEvery:   bp.UpdateEvery,
			FrameInterval: bp.FrameInterval,
		},
		Focus: FocusConfig{
			WindowLen:   f.WindowLen,
			UpdateEvery: f.UpdateEvery,
			HistorySize: f.HistorySize,
			MinHistory:  f.MinHistory,
		},
		Camera: CameraConfig{Preset: camera.PresetDefault, Config: camera.DefaultConfig()},
		EEG:    EEGConfig{Source: EEGSynthetic, Config: eeg.DefaultConfig()},
	}
}

// Load reads path (if non-empty) over the defaults, then applies the
// environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.applyPreset(data); err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyPreset swaps in the named camera preset before the file's explicit
// camera fields are decoded over it.
func (c *Config) applyPreset(data []byte) error {
	var probe struct {
		Camera struct {
			Preset string `yaml:"preset"`
		} `yaml:"camera"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	name := probe.Camera.Preset
	if name == "" {
		return nil
	}
	p := camera.GetPreset(name)
	if p == nil {
		return fmt.Errorf("unknown camera preset: %s", name)
	}
	c.Camera = CameraConfig{Preset: name, Config: *p}
	return nil
}

// ApplyEnv overrides fields from FOCUS_HOST, FOCUS_PORT, LOG_LEVEL,
// LOG_FORMAT, EEG_BROKER, EEG_TOPIC and CAMERA_DEVICE.
func (c *Config) ApplyEnv() error {
	c.Server.Host = envOr("FOCUS_HOST", c.Server.Host)
	c.Log.Level = envOr("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("LOG_FORMAT", c.Log.Format)
	c.EEG.Broker = envOr("EEG_BROKER", c.EEG.Broker)
	c.EEG.Topic = envOr("EEG_TOPIC", c.EEG.Topic)

	var err error
	if c.Server.Port, err = envInt("FOCUS_PORT", c.Server.Port); err != nil {
		return err
	}
	if c.Camera.Device, err = envInt("CAMERA_DEVICE", c.Camera.Device); err != nil {
		return err
	}
	return nil
}

// envOr returns the env var value, or def if unset or empty.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Hub.QueueSize < 1 {
		errs = append(errs, errors.New("hub.queue_size must be at least 1"))
	}
	if c.Hub.FocusStaleAfter <= 0 {
		errs = append(errs, errors.New("hub.focus_stale_after must be positive"))
	}
	if c.Hub.BlinkStaleAfter <= 0 {
		errs = append(errs, errors.New("hub.blink_stale_after must be positive"))
	}
	if err := c.BlinkProducer().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.FocusCalculator().Validate(); err != nil {
		errs = append(errs, err)
	}
	if camErrs := c.Camera.Validate(); len(camErrs) > 0 {
		errs = append(errs, fmt.Errorf("camera: %s", strings.Join(camErrs, "; ")))
	}

	switch c.EEG.Source {
	case EEGSynthetic, EEGNone:
	case EEGMQTT:
		if err := c.EEG.Config.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("eeg.source must be synthetic, mqtt or none, got %q", c.EEG.Source))
	}

	return errors.Join(errs...)
}

// HubSettings returns the broadcaster settings.
func (c Config) HubSettings() hub.Config {
	return hub.Config{
		QueueSize:       c.Hub.QueueSize,
		FocusStaleAfter: c.Hub.FocusStaleAfter,
		BlinkStaleAfter: c.Hub.BlinkStaleAfter,
	}
}

// BlinkProducer returns the blink producer settings.
func (c Config) BlinkProducer() producer.BlinkConfig {
	cfg := producer.DefaultBlinkConfig()
	cfg.Detector.Threshold = c.Blink.Threshold
	cfg.Detector.ConsecFrames = c.Blink.ConsecFrames
	cfg.Detector.RateWindow = c.Blink.RateWindow
	cfg.UpdateEvery = c.Blink.UpdateEvery
	cfg.FrameInterval = c.Blink.FrameInterval
	return cfg
}

// FocusCalculator returns the focus settings. The sample rate comes from
// the EEG config and is overridden by the source at runtime.
func (c Config) FocusCalculator() focus.Config {
	cfg := focus.DefaultConfig()
	cfg.SampleRate = c.EEG.SampleRate
	cfg.Channels = c.EEG.Channels
	cfg.WindowLen = c.Focus.WindowLen
	cfg.UpdateEvery = c.Focus.UpdateEvery
	cfg.HistorySize = c.Focus.HistorySize
	cfg.MinHistory = c.Focus.MinHistory
	return cfg
}
