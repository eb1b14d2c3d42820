// Package web serves the subscriber websocket and a small status API.
package web

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/teslashibe/go-focus/pkg/eeg"
	"github.com/teslashibe/go-focus/pkg/hub"
	"github.com/teslashibe/go-focus/pkg/producer"
)

// BlinkStatus reports the blink controller state for the status API.
type BlinkStatus interface {
	Status() producer.ControllerStatus
}

// EEGStats reports EEG transport counters for the status API.
type EEGStats interface {
	Stats() eeg.Stats
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithBlinkStatus exposes the blink controller in /api/status.
func WithBlinkStatus(b BlinkStatus) Option {
	return func(s *Server) {
		s.blink = b
	}
}

// WithEEGStats exposes EEG source counters in /api/status.
func WithEEGStats(e EEGStats) Option {
	return func(s *Server) {
		s.eeg = e
	}
}

// Server is the subscriber-facing HTTP server.
type Server struct {
	app   *fiber.App
	addr  string
	hub   *hub.Hub
	blink BlinkStatus
	eeg   EEGStats
	log   *slog.Logger
	ctx   context.Context
}

// NewServer creates a server listening on addr (host:port).
func NewServer(addr string, h *hub.Hub, opts ...Option) *Server {
	s := &Server{
		addr: addr,
		hub:  h,
		log:  slog.Default(),
		ctx:  context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "web")

	app := fiber.New(fiber.Config{
		AppName:               "focusd",
		DisableStartupMessage: true,
	})

	// CORS for browser dashboards on other origins
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)

	// WebSocket upgrade middleware
	upgrade := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
	app.Get("/", upgrade, websocket.New(s.handleSubscriber))
	app.Get("/ws", upgrade, websocket.New(s.handleSubscriber))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.ctx = ctx
	s.log.Info("listening", "addr", s.addr)

	errc := make(chan error, 1)
	go func() {
		errc <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errc
}
