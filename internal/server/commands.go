package server

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/oszuidwest/zwfm-meter/internal/meter"
	"github.com/oszuidwest/zwfm-meter/internal/types"
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Meter is the metering engine as seen by the web interface.
type Meter interface {
	Current() types.AudioLevels
	Subscribe(fn meter.Observer) (unsubscribe func(), err error)
	SetFallRate(rate float64) error
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	meter Meter
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(m Meter) *CommandHandler {
	return &CommandHandler{meter: m}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "levels/get", "meter/fall_rate").
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	namespace, action, _ := strings.Cut(cmd.Type, "/")

	switch namespace {
	case "levels":
		h.handleLevels(action, cmd, send)
	case "status":
		h.handleStatus(action)
	case "meter":
		h.handleMeter(action, cmd, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
		return
	}

	triggerStatusUpdate()
}

// handleLevels routes levels/* commands
func (h *CommandHandler) handleLevels(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "get":
		SendSuccess(send, cmd.Type, h.meter.Current())
	default:
		slog.Warn("unknown levels action", "action", action)
	}
}

// handleStatus routes status/* commands
func (h *CommandHandler) handleStatus(action string) {
	switch action {
	case "get":
		// Status is sent automatically, but explicit get triggers immediate update
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}

// handleMeter routes meter/* commands
func (h *CommandHandler) handleMeter(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "fall_rate":
		HandleCommand(cmd, send, func(req *FallRateRequest) error {
			return h.meter.SetFallRate(req.FallRate)
		})
	default:
		slog.Warn("unknown meter action", "action", action)
	}
}
