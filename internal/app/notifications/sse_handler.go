package notifications

import (
	"encoding/json"
	"fmt"
	"net/http"

	"bookstore-orders/internal/shared/logger"
)

// SSEHandler streams live notifications to clients as Server-Sent Events.
type SSEHandler struct {
	hub    *Hub
	logger *logger.Logger
}

// NewSSEHandler wires the stream endpoint around a Hub.
func NewSSEHandler(hub *Hub, logger *logger.Logger) *SSEHandler {
	return &SSEHandler{hub: hub, logger: logger}
}

// Register mounts the stream route on the provided mux.
func (handler *SSEHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/notifications/stream", handler.handleStream)
}

// handleStream subscribes the client and writes one "data: <json>" frame per
// notification until the client disconnects or the server shuts down.
func (handler *SSEHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	handler.logger.Debug(ctx, "sse_subscribed", "SSE client connected", nil)

	// the subscription ends when the request context is cancelled, either by
	// client disconnect or process shutdown
	for n := range handler.hub.Subscribe(ctx) {
		payload, err := json.Marshal(n)
		if err != nil {
			handler.logger.Error(ctx, "notification_encode_failed", "Failed to encode notification", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}

	handler.logger.Debug(ctx, "sse_unsubscribed", "SSE client disconnected", nil)
}
