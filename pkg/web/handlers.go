package web

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-focus/pkg/eeg"
	"github.com/teslashibe/go-focus/pkg/hub"
	"github.com/teslashibe/go-focus/pkg/producer"
	"github.com/teslashibe/go-focus/pkg/protocol"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Hub   hub.Stats                  `json:"hub"`
	Blink *producer.ControllerStatus `json:"blink,omitempty"`
	EEG   *eeg.Stats                 `json:"eeg,omitempty"`
	Last  LatestMessages             `json:"latest"`
}

// LatestMessages holds the last blink and focus messages as subscribers saw
// them, without merging.
type LatestMessages struct {
	Blink *protocol.BlinkMessage `json:"blink,omitempty"`
	Focus any                    `json:"focus,omitempty"`
}

// handleStatus returns hub stats, blink controller state, EEG counters and
// the latest snapshots.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{Hub: s.hub.Stats()}
	if s.blink != nil {
		st := s.blink.Status()
		resp.Blink = &st
	}
	if s.eeg != nil {
		st := s.eeg.Stats()
		resp.EEG = &st
	}

	latest, err := s.hub.Latest(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if latest.Blink != nil {
		m := protocol.NewBlinkMessage(*latest.Blink)
		resp.Last.Blink = &m
	}
	if latest.Focus != nil {
		resp.Last.Focus = protocol.NewFocusMessage(*latest.Focus, nil)
	}
	return c.JSON(resp)
}

// handleSubscriber serves one websocket subscriber until it disconnects.
func (s *Server) handleSubscriber(c *websocket.Conn) {
	client := hub.NewClient(s.hub, c)
	s.log.Debug("websocket connected", "id", client.ID(), "remote", c.RemoteAddr().String())
	if err := client.Run(s.ctx); err != nil {
		s.log.Warn("subscriber rejected", "id", client.ID(), "error", err)
	}
}
