package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/me/rfsched/internal/events"
	"github.com/me/rfsched/pkg/model"
)

// handleSSENotifications streams client notifications via Server-Sent Events.
// GET /api/v1/sse/notifications
func (s *Server) handleSSENotifications(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.bus == nil {
		respondError(w, reqID, model.NewNotFoundError("stream", "notifications"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	ch := make(chan model.Notification, 64)
	unsubscribe := s.bus.Subscribe(events.TopicNotification, func(e events.Event) {
		select {
		case ch <- *e.Notification:
		default:
		}
	})
	defer unsubscribe()

	if err := sendSSEEvent(w, flusher, "init", s.radio.Snapshot()); err != nil {
		s.logger.Debug("sse client disconnected", "error", err)
		return
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case n := <-ch:
			if err := sendSSEEvent(w, flusher, "notification", n); err != nil {
				s.logger.Debug("sse client disconnected", "error", err)
				return
			}
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
	if err != nil {
		return err
	}

	flusher.Flush()
	return nil
}
