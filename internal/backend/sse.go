// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/jeranaias/vizchat-tui/internal/util"
)

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventKind discriminates the three stream event cases.
type EventKind int

const (
	// EventChunk carries an incremental piece of response text.
	EventChunk EventKind = iota

	// EventDone marks successful end of stream. No further events follow.
	EventDone

	// EventError carries a backend-reported or transport-level failure.
	// No further events follow.
	EventError
)

// String returns a readable name for logging.
func (k EventKind) String() string {
	switch k {
	case EventChunk:
		return "chunk"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// StreamEvent is one decoded event from the query stream. Exactly one
// of the payload fields is meaningful, selected by Kind.
type StreamEvent struct {
	Kind  EventKind
	Chunk string

	// Err and ErrType are set for EventError. ErrType is the backend's
	// optional machine-readable category and may be empty.
	Err     string
	ErrType string
}

// Terminal reports whether no further events follow this one.
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

// StreamCallback receives decoded events in arrival order.
type StreamCallback func(StreamEvent)

// =============================================================================
// EVENT READER
// =============================================================================

// ssePayload mirrors the wire shape of a single data line. Pointer
// fields distinguish "absent" from "empty".
type ssePayload struct {
	Chunk *string `json:"chunk"`
	Done  bool    `json:"done"`
	Error *string `json:"error"`
	Type  string  `json:"type"`
}

// EventReader decodes newline-delimited SSE frames from a query stream.
// Only "data:" lines are parsed; empty data lines are keep-alives and
// skipped. The reader is finite and non-restartable: after a done or
// error event, or after the underlying stream ends, ReadEvent returns
// io.EOF forever.
type EventReader struct {
	reader *bufio.Reader
	done   bool
}

// NewEventReader wraps r. The bufio layer reassembles frames that
// arrive split across reads, including mid-rune splits.
func NewEventReader(r io.Reader) *EventReader {
	return &EventReader{reader: bufio.NewReader(r)}
}

// ReadEvent returns the next decoded event. A payload that is not valid
// JSON is a fatal protocol violation: one error event naming the
// malformed content is returned and the reader terminates. A failure
// reading the underlying stream (a dropped connection, an aborted
// body) terminates the reader and is returned as a connection-category
// error; only a clean end of stream reads as io.EOF.
func (r *EventReader) ReadEvent() (StreamEvent, error) {
	if r.done {
		return StreamEvent{}, io.EOF
	}

	for {
		line, err := r.reader.ReadString('\n')
		if err != nil {
			r.done = true
			if err != io.EOF {
				return StreamEvent{}, &ClientError{
					Type:    ErrTypeConnection,
					Message: "stream read failed",
					Cause:   err,
				}
			}
			if len(line) > 0 {
				// Final line without trailing newline still counts.
				if ev, ok := r.decodeLine(line); ok {
					return ev, nil
				}
			}
			return StreamEvent{}, io.EOF
		}

		ev, ok := r.decodeLine(line)
		if !ok {
			continue
		}
		if ev.Terminal() {
			r.done = true
		}
		return ev, nil
	}
}

// decodeLine parses one wire line. ok is false for lines that carry no
// event: non-data lines, keep-alive empties, and well-formed payloads
// with no recognized field.
func (r *EventReader) decodeLine(line string) (StreamEvent, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "data:") {
		return StreamEvent{}, false
	}
	data := strings.TrimSpace(line[len("data:"):])
	if data == "" {
		// Keep-alive.
		return StreamEvent{}, false
	}

	var p ssePayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return StreamEvent{
			Kind: EventError,
			Err:  "malformed stream payload: " + util.TruncateWidth(data, 120),
		}, true
	}

	switch {
	case p.Error != nil:
		return StreamEvent{Kind: EventError, Err: *p.Error, ErrType: p.Type}, true
	case p.Done:
		return StreamEvent{Kind: EventDone}, true
	case p.Chunk != nil:
		return StreamEvent{Kind: EventChunk, Chunk: *p.Chunk}, true
	default:
		// Valid JSON with no recognized field; ignore.
		return StreamEvent{}, false
	}
}

// Process drains the stream, invoking fn for each event until a
// terminal event, EOF, context cancellation, or a read failure.
// Cancellation returns ctx.Err() — including when it surfaces as an
// aborted body read, so callers can always tell a cancelled session
// from a broken one. Normal exhaustion returns nil.
func (r *EventReader) Process(ctx context.Context, fn StreamCallback) error {
	for {
		select {
		case <-ctx.Done():
			r.done = true
			return ctx.Err()
		default:
		}

		ev, err := r.ReadEvent()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		fn(ev)
		if ev.Terminal() {
			return nil
		}
	}
}
