package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/oszuidwest/zwfm-meter/internal/types"
)

// Handler serves the meter's HTTP and WebSocket endpoints.
type Handler struct {
	meter    Meter
	status   func() types.EngineStatus
	version  string
	commands *CommandHandler
}

// NewHandler returns a handler for m. status reports the combined engine and capture state.
func NewHandler(m Meter, status func() types.EngineStatus, version string) *Handler {
	return &Handler{
		meter:    m,
		status:   status,
		version:  version,
		commands: NewCommandHandler(m),
	}
}

// Register adds the handler's routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/levels", h.handleLevels)
	mux.HandleFunc("GET /api/status", h.handleStatus)
	mux.HandleFunc("GET /ws", h.handleWebSocket)
}

// handleLevels handles GET /api/levels.
func (h *Handler) handleLevels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.meter.Current())
}

// handleStatus handles GET /api/status.
func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.buildWSStatus())
}

// buildWSStatus returns the current status response.
func (h *Handler) buildWSStatus() types.WSStatusResponse {
	return types.WSStatusResponse{
		Type:    "status",
		Version: h.version,
		Engine:  h.status(),
	}
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
