// Package eeg receives headband samples over MQTT.
//
// A bridge process (Muse LSL outlet, BLE gateway, ...) publishes each sample
// or chunk of samples as JSON to a topic. A payload is either one sample,
// `[tp9, af7, af8, tp10, ...]`, or a chunk, `[[...], [...]]`. Channels past
// the configured count are ignored.
package eeg

import (
	"errors"
	"time"
)

// Config holds broker and stream settings.
type Config struct {
	Broker     string        `yaml:"broker"`      // e.g. tcp://localhost:1883
	Topic      string        `yaml:"topic"`       // Sample topic
	ClientID   string        `yaml:"client_id"`   // Empty means generated
	QoS        byte          `yaml:"qos"`         // 0 or 1
	SampleRate float64       `yaml:"sample_rate"` // Hz, as published by the bridge
	Channels   int           `yaml:"channels"`    // Channels kept per sample
	Timeout    time.Duration `yaml:"timeout"`     // NextSample wait before ErrTimeout
	Buffer     int           `yaml:"buffer"`      // Samples queued before dropping

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DefaultConfig returns settings for a Muse bridge on a local broker.
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		Topic:          "eeg/muse/samples",
		QoS:            0,
		SampleRate:     256,
		Channels:       4,
		Timeout:        2 * time.Second,
		Buffer:         4096,
		ConnectTimeout: 5 * time.Second,
	}
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	switch {
	case c.Broker == "":
		return errors.New("eeg: broker is required")
	case c.Topic == "":
		return errors.New("eeg: topic is required")
	case c.QoS > 2:
		return errors.New("eeg: qos must be 0, 1 or 2")
	case c.SampleRate <= 0:
		return errors.New("eeg: sample_rate must be positive")
	case c.Channels < 1:
		return errors.New("eeg: channels must be at least 1")
	case c.Timeout <= 0:
		return errors.New("eeg: timeout must be positive")
	case c.Buffer < 1:
		return errors.New("eeg: buffer must be at least 1")
	}
	return nil
}
