package eeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/teslashibe/go-focus/pkg/sensor"
)

// Stats counts payloads seen by a Source.
type Stats struct {
	Received  uint64 `json:"received"`
	Dropped   uint64 `json:"dropped"`
	Malformed uint64 `json:"malformed"`
}

// Source is a sensor.SampleSource fed by an MQTT subscription.
type Source struct {
	cfg    Config
	log    *slog.Logger
	client mqtt.Client

	samples chan []float64
	done    chan struct{}
	once    sync.Once

	received  atomic.Uint64
	dropped   atomic.Uint64
	malformed atomic.Uint64
}

func newSource(cfg Config, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	return &Source{
		cfg:     cfg,
		log:     log.With("component", "eeg", "topic", cfg.Topic),
		samples: make(chan []float64, cfg.Buffer),
		done:    make(chan struct{}),
	}
}

// Open connects to the broker and subscribes to the sample topic. Connection
// failures wrap sensor.ErrUnavailable.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := newSource(cfg, log)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "focusd-" + uuid.NewString()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetCleanSession(true)
	opts.OnConnect = func(c mqtt.Client) {
		// Resubscribe after automatic reconnects.
		token := c.Subscribe(cfg.Topic, cfg.QoS, s.onMessage)
		if token.WaitTimeout(cfg.ConnectTimeout) && token.Error() != nil {
			s.log.Error("resubscribe failed", "error", token.Error())
		}
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.log.Warn("mqtt connection lost, will auto-reconnect", "error", err)
	}

	s.client = mqtt.NewClient(opts)
	s.log.Info("connecting to mqtt broker", "broker", cfg.Broker, "client_id", clientID)

	token := s.client.Connect()
	if !waitToken(ctx, token, cfg.ConnectTimeout) {
		s.client.Disconnect(0)
		return nil, fmt.Errorf("%w: mqtt connection timeout", sensor.ErrUnavailable)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: mqtt connection failed: %v", sensor.ErrUnavailable, err)
	}
	return s, nil
}

func waitToken(ctx context.Context, t mqtt.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Source) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.handle(msg.Payload())
}

// handle queues every sample in payload, dropping what does not fit.
func (s *Source) handle(payload []byte) {
	samples, err := decodePayload(payload, s.cfg.Channels)
	if err != nil {
		if s.malformed.Add(1) == 1 {
			s.log.Warn("ignoring malformed payload", "error", err)
		}
		return
	}
	for _, sample := range samples {
		s.received.Add(1)
		select {
		case s.samples <- sample:
		default:
			if s.dropped.Add(1)%1000 == 1 {
				s.log.Warn("sample queue full, dropping", "dropped", s.dropped.Load())
			}
		}
	}
}

// NextSample returns the next queued sample. It returns sensor.ErrTimeout if
// none arrives within the configured timeout and io.EOF after Close.
func (s *Source) NextSample(ctx context.Context) ([]float64, error) {
	select {
	case sample := <-s.samples:
		return sample, nil
	default:
	}

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	select {
	case sample := <-s.samples:
		return sample, nil
	case <-timer.C:
		return nil, sensor.ErrTimeout
	case <-s.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SampleRate returns the configured rate.
func (s *Source) SampleRate() float64 {
	return s.cfg.SampleRate
}

// Stats returns payload counters.
func (s *Source) Stats() Stats {
	return Stats{
		Received:  s.received.Load(),
		Dropped:   s.dropped.Load(),
		Malformed: s.malformed.Load(),
	}
}

// Close unsubscribes and disconnects. Safe to call more than once.
func (s *Source) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.client == nil {
			return
		}
		if s.client.IsConnected() {
			token := s.client.Unsubscribe(s.cfg.Topic)
			if token.WaitTimeout(time.Second) {
				err = token.Error()
			}
		}
		s.client.Disconnect(250)
		s.log.Info("mqtt disconnected")
	})
	if err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}
