package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the outer stream frame. Data holds the channel event, either as
// an object or as a JSON-encoded string.
type Envelope struct {
	Event   string          `json:"event,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// Payload is the command output chunk inside an event.
type Payload struct {
	Session string `json:"session"`
	Raw     string `json:"raw"`
}

// event is the middle layer; its data is again an object or a string.
type event struct {
	Data json.RawMessage `json:"data"`
}

var errMissingData = errors.New("frame has no data")

// decodeFrame unwraps both envelope layers of a stream frame.
func decodeFrame(frame []byte) (*Payload, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	middle, err := unquote(env.Data)
	if err != nil {
		return nil, err
	}

	var ev event
	if err := json.Unmarshal(middle, &ev); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	inner, err := unquote(ev.Data)
	if err != nil {
		return nil, err
	}

	var p Payload
	if err := json.Unmarshal(inner, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return &p, nil
}

// unquote returns the document inside a JSON string, or raw itself when it is
// already an object.
func unquote(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errMissingData
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("invalid data string: %w", err)
	}
	return []byte(s), nil
}
