// Package realtime bridges the push channel over websockets: a server that
// streams backend events to remote subscribers, and a client that consumes
// such a stream as a backend.Realtime.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/VedantVallal/chatapplication-63/internal/backend"
)

// Path is where the server handler is mounted.
const Path = "/v1/realtime"

// Frame types.
const (
	TypeConnected = "connected"
	TypeEvent     = "event"
	TypeError     = "error"
)

// Frame is one websocket text message.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EventData is the body of an event frame.
type EventData struct {
	Events    []string        `json:"events"`
	Channels  []string        `json:"channels"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ConnectedData acknowledges the channels a connection is subscribed to.
type ConnectedData struct {
	Channels []string `json:"channels"`
}

// ErrorData carries a server-side failure.
type ErrorData struct {
	Message string `json:"message"`
}

func newFrame(typ string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: typ, Data: raw}, nil
}

func eventFrame(e backend.Event) (Frame, error) {
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return newFrame(TypeEvent, EventData{
		Events:    e.Labels,
		Channels:  e.Channels,
		Timestamp: backend.FormatTime(e.Timestamp),
		Payload:   payload,
	})
}

// decodeEvent turns an event frame body back into a backend event. Operation
// kinds are decoded here, once.
func decodeEvent(data json.RawMessage) (backend.Event, error) {
	var d EventData
	if err := json.Unmarshal(data, &d); err != nil {
		return backend.Event{}, err
	}
	ts, err := backend.ParseTime(d.Timestamp)
	if err != nil {
		ts = time.Now()
	}
	return backend.Event{
		Labels:    d.Events,
		Channels:  d.Channels,
		Ops:       backend.ParseOps(d.Events),
		Timestamp: ts,
		Payload:   d.Payload,
	}, nil
}
