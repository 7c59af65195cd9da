package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// errStreamingUnsupported is returned when the response cannot be flushed
// incrementally.
var errStreamingUnsupported = errors.New("streaming not supported")

// SSEWriter frames job updates as Server-Sent Events. Events used by the job
// stream are:
//
//	progress  the full JobStatusView, sent whenever counters or status change
//	complete  {"jobId", "status"} once the job is terminal
//	error     {"error"} when the job can no longer be loaded
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter sets the event-stream headers on w.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent encodes payload as JSON and flushes it as one named event.
func (s *SSEWriter) WriteEvent(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteError tells the client the stream is ending without a result.
func (s *SSEWriter) WriteError(message string) {
	s.WriteEvent("error", map[string]string{"error": message}) //nolint:errcheck
}

// WriteComplete sends the terminal status for jobID.
func (s *SSEWriter) WriteComplete(jobID, status string) {
	s.WriteEvent("complete", map[string]string{ //nolint:errcheck
		"jobId":  jobID,
		"status": status,
	})
}
