package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// doneSentinel terminates every canonical streaming response.
const doneSentinel = "data: [DONE]\n\n"

// Writer emits canonical `data: <json>` frames to a client connection,
// flushing after every frame so chunks are delivered as they are produced.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps w. If w implements http.Flusher each frame is flushed
// immediately; otherwise writes are left to the transport's buffering.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// PrepareHeaders sets the response headers for a text/event-stream reply.
// Must be called before the first frame.
func PrepareHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// WriteEvent marshals v and writes it as one data frame.
func (w *Writer) WriteEvent(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal stream frame: %w", err)
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	w.flush()
	return nil
}

// WriteDone writes the protocol-terminal sentinel. It is always the last
// thing written on a streaming response, including error paths.
func (w *Writer) WriteDone() error {
	if _, err := io.WriteString(w.w, doneSentinel); err != nil {
		return err
	}
	w.flush()
	return nil
}

func (w *Writer) flush() {
	if w.flusher != nil {
		w.flusher.Flush()
	}
}
