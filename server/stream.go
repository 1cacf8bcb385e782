package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/randalmurphal/careflow"
	"github.com/randalmurphal/careflow/stream"
)

// handleStream serves the thread's progress as server-sent events.
// Delivery is best effort with a bounded buffer; clients that fall
// behind re-sync through the snapshot endpoint. The stream closes after
// a terminal event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", "internal")
		return
	}

	// Subscribe before the registry read so a completion landing
	// between the two is seen one way or the other.
	sub := s.svc.Subscribe(threadID)
	defer sub.Unsubscribe()

	meta, err := s.svc.Thread(r.Context(), threadID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := io.WriteString(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	// A thread that already finished will never emit again; hand the
	// client one terminal event so it does not wait on heartbeats.
	if status := careflow.Status(meta.Status); status.Terminal() {
		writeSSE(w, terminalEvent(threadID, status))
		flusher.Flush()
		return
	}

	heartbeat := time.NewTicker(s.cfg.heartbeat())
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if ev.Type == stream.EventCompleted || ev.Type == stream.EventError {
				return
			}
		}
	}
}

func writeSSE(w io.Writer, ev stream.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.Seq, data)
	return err
}

func terminalEvent(threadID string, status careflow.Status) stream.Event {
	eventType := stream.EventCompleted
	if status == careflow.StatusError {
		eventType = stream.EventError
	}
	return stream.Event{
		Type:      eventType,
		ThreadID:  threadID,
		Status:    string(status),
		Timestamp: time.Now().UTC(),
	}
}
