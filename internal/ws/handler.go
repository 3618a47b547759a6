package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/christopherjohns/chatrelay/internal/session"
)

// Inbound wire-level event names.
const (
	eventJoin         = "join"
	eventSendMessage  = "sendMessage"
	eventSendLocation = "sendLocation"
	eventAck          = "ack"
)

// Handler upgrades HTTP requests to WebSockets and drives the session
// protocol from each connection's read loop.
type Handler struct {
	hub   *Hub
	proto *session.Protocol
}

// NewHandler creates a WebSocket Handler.
func NewHandler(hub *Hub, proto *session.Protocol) *Handler {
	return &Handler{
		hub:   hub,
		proto: proto,
	}
}

// ServeHTTP accepts the WebSocket, assigns the connection its ID, and runs
// the read loop until the client goes away. Connection close is the only
// leave signal; it is surfaced to the protocol as a disconnect.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow all origins in dev; tighten in production.
	})
	if err != nil {
		log.Printf("ws: accept error: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
	}

	connCtx := h.hub.Track(client)
	defer func() {
		h.proto.Disconnect(client.id)
		h.hub.Drop(client)
	}()

	h.readLoop(r.Context(), connCtx, client)
}

// readLoop decodes inbound envelopes and dispatches them until the
// connection closes or the connection manager cancels connCtx.
func (h *Handler) readLoop(ctx context.Context, connCtx context.Context, client *Client) {
	for {
		select {
		case <-connCtx.Done():
			return
		default:
		}

		_, data, err := client.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancelled.
			return
		}

		h.hub.ConnMgr().Touch(client)

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Type {
		case eventJoin:
			var payload JoinPayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				h.ack(client, env.ID, "invalid join payload")
				continue
			}
			h.ackErr(client, env.ID, h.proto.Join(client.id, payload.Username, payload.Room))

		case eventSendMessage:
			var text string
			if err := json.Unmarshal(env.Payload, &text); err != nil {
				h.ack(client, env.ID, "invalid message payload")
				continue
			}
			h.ackErr(client, env.ID, h.proto.SendMessage(client.id, text))

		case eventSendLocation:
			var payload LocationPayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				h.ack(client, env.ID, "invalid location payload")
				continue
			}
			h.ackErr(client, env.ID, h.proto.SendLocation(client.id, payload.Latitude, payload.Longitude))

		default:
			log.Printf("ws: unhandled event %q from conn %s", env.Type, client.id)
		}
	}
}

// ackErr acknowledges a request, carrying the error text when err is set.
func (h *Handler) ackErr(client *Client, refID string, err error) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	h.ack(client, refID, reason)
}

// ack sends exactly one acknowledgment for the request identified by refID.
func (h *Handler) ack(client *Client, refID, reason string) {
	h.hub.Emit(client.id, eventAck, AckPayload{ID: refID, Error: reason})
}
