package ws

import "encoding/json"

// Envelope is the JSON frame sent in both directions over the WebSocket.
// Type carries the wire-level event name; ID correlates a request with its
// acknowledgment.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload is sent by a client to join a room.
type JoinPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// LocationPayload is sent by a client to share its coordinates.
type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AckPayload acknowledges one request. Error is empty on success, otherwise
// it carries the user-facing reason. Every join, sendMessage and sendLocation
// request gets exactly one ack.
type AckPayload struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// marshalEnvelope wraps a payload into a wire frame for the given event.
func marshalEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: event, Payload: data})
}
