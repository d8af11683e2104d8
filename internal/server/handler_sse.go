package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleSSEJobs streams job state events via Server-Sent Events. Every
// subscriber gets every event; clients filter by job_id themselves.
// GET /api/v1/sse/jobs
func (s *Server) handleSSEJobs(w http.ResponseWriter, r *http.Request) {
	// Set headers for SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	events, cancel := s.broker.Subscribe(16)
	defer cancel()

	// Send the current job set so clients can render before the first event.
	if err := sendSSEEvent(w, flusher, "init", s.sched.GetAll()); err != nil {
		s.logger.Debug("sse client disconnected", "error", err)
		return
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sendSSEEvent(w, flusher, "job", ev); err != nil {
				s.logger.Debug("sse client disconnected", "error", err)
				return
			}
		case <-ticker.C:
			// Send heartbeat.
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
