// Package sse implements text/event-stream framing: an incremental decoder
// for backend streams and a writer for the client-facing protocol.
//
// DESIGN: The decoder is dumb on purpose. It frames bytes into RawEvents and
// nothing else; payload semantics belong to internal/stream. One decoder is
// created per request and holds no cross-request state.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// defaultEventType is used when a frame carries data lines but no event line,
// per the text/event-stream specification.
const defaultEventType = "message"

// RawEvent is one framed unit from a backend stream.
type RawEvent struct {
	Type string
	Data string
}

// Decoder reads RawEvents from a byte stream. Lines split across network
// chunks are buffered by the underlying reader until a terminator arrives.
type Decoder struct {
	r         *bufio.Reader
	eventType string
	data      []string
	explicit  bool // an event: line was seen for the pending frame
	done      bool
}

// NewDecoder creates a decoder over r. The reader's buffer is sized for
// large single-line payloads (JSON-encoded source lists).
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:         bufio.NewReaderSize(r, 64*1024),
		eventType: defaultEventType,
	}
}

// Next returns the next event, or io.EOF once the stream is exhausted.
// A frame left unterminated when the stream closes is delivered before EOF,
// so trailing fragments are never dropped. Comment, id: and retry: lines are
// consumed but carry no data.
func (d *Decoder) Next() (RawEvent, error) {
	if d.done {
		return RawEvent{}, io.EOF
	}

	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				d.done = true
				// Residual content without a final newline still counts.
				if line != "" {
					d.consumeLine(strings.TrimRight(line, "\r"))
				}
				if ev, ok := d.takePending(); ok {
					return ev, nil
				}
				return RawEvent{}, io.EOF
			}
			d.done = true
			return RawEvent{}, err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if ev, ok := d.takePending(); ok {
				return ev, nil
			}
			continue
		}
		d.consumeLine(line)
	}
}

// consumeLine folds one non-blank line into the pending frame.
func (d *Decoder) consumeLine(line string) {
	if strings.HasPrefix(line, ":") {
		return
	}

	field, value, found := strings.Cut(line, ":")
	if !found {
		// A bare field name is a field with an empty value.
		field, value = line, ""
	}
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "event":
		d.eventType = value
		d.explicit = true
	case "data":
		d.data = append(d.data, value)
	case "id", "retry":
		// Reconnection bookkeeping, irrelevant for a one-shot stream.
	default:
		// Unknown fields are ignored per the framing rules.
	}
}

// takePending dispatches the buffered frame, if any. A frame is pending when
// it has data lines or an explicit event name (close/done events may carry
// no payload at all).
func (d *Decoder) takePending() (RawEvent, bool) {
	if len(d.data) == 0 && !d.explicit {
		return RawEvent{}, false
	}
	ev := RawEvent{
		Type: d.eventType,
		Data: strings.Join(d.data, "\n"),
	}
	d.eventType = defaultEventType
	d.data = nil
	d.explicit = false
	return ev, true
}
