package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEWriter writes bare `data:` frames, one JSON object per frame. Headers
// are committed by the first Send, so a handler can still fail with a plain
// HTTP error until then.
type SSEWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	return &SSEWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

func (s *SSEWriter) Send(data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if !s.started {
		s.started = true
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Started reports whether any frame has been written.
func (s *SSEWriter) Started() bool { return s.started }
