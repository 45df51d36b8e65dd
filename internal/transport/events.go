// Package transport maintains the bidirectional channel to the
// recognition backend: JSON control messages, binary frame payloads,
// and asynchronous result events fanned out to subscribers.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventKind names the wire events exchanged with the backend.
type EventKind string

const (
	EventConnect      EventKind = "connect"
	EventDisconnect   EventKind = "disconnect"
	EventConnectError EventKind = "connect_error"
	EventAttResult    EventKind = "att_result"
	EventFunResult    EventKind = "fun_result"
)

// Stream identifies one of the two independent send streams.
type Stream string

const (
	StreamAttendance Stream = "att"
	StreamFun        Stream = "fun"
)

// FrameEvent returns the outbound binary event name for a stream.
func (s Stream) FrameEvent() string {
	return string(s) + "_frame"
}

// Event is one inbound occurrence delivered to subscribers. Result
// events carry the raw decoded payload; normalization happens once at
// the pipeline's ingestion point.
type Event struct {
	Kind    EventKind
	Payload map[string]any
	Err     error
}

// envelope is the JSON shape of text control messages in both
// directions: {"event": "...", "data": {...}}.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AttConfig is sent once per connection establishment to configure
// server-side matching.
type AttConfig struct {
	Threshold float64 `json:"th"`
	Mark      bool    `json:"mark"`
}

var errShortBinaryMessage = errors.New("binary message too short")

// EncodeBinary frames a binary payload as a length-prefixed event name
// followed by the raw bytes.
func EncodeBinary(event string, payload []byte) ([]byte, error) {
	if len(event) == 0 || len(event) > 255 {
		return nil, fmt.Errorf("invalid binary event name %q", event)
	}
	out := make([]byte, 0, 1+len(event)+len(payload))
	out = append(out, byte(len(event)))
	out = append(out, event...)
	out = append(out, payload...)
	return out, nil
}

// DecodeBinary splits a binary wire message into event name and payload.
func DecodeBinary(msg []byte) (string, []byte, error) {
	if len(msg) < 2 {
		return "", nil, errShortBinaryMessage
	}
	nameLen := int(msg[0])
	if len(msg) < 1+nameLen {
		return "", nil, errShortBinaryMessage
	}
	return string(msg[1 : 1+nameLen]), msg[1+nameLen:], nil
}
