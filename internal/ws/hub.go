// Package ws is the WebSocket transport: it accepts connections, maintains
// the room broadcast groups, and fans protocol events out to subscribers.
package ws

import (
	"context"
	"log"
	"sync"

	"github.com/christopherjohns/chatrelay/internal/session"
)

// Hub implements the connection abstraction the session protocol emits
// through. It tracks which connections are subscribed to which room group
// and delivers frames to one connection, a room, or a room minus the sender.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	byID  map[string]*Client
	conns *ConnManager
	relay *Relay
}

// NewHub creates a Hub using the given connection manager.
func NewHub(conns *ConnManager) *Hub {
	if conns == nil {
		conns = NewConnManager()
	}
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		byID:  make(map[string]*Client),
		conns: conns,
	}
}

// ConnMgr returns the hub's connection manager.
func (h *Hub) ConnMgr() *ConnManager {
	return h.conns
}

// SetRelay attaches a cross-instance relay. Room broadcasts are mirrored to
// it, and frames it receives from other instances are delivered locally.
func (h *Hub) SetRelay(r *Relay) {
	h.relay = r
	r.hub = h
}

// Track registers a freshly accepted connection and starts its write pump.
// The connection belongs to no room until the protocol subscribes it.
func (h *Hub) Track(c *Client) context.Context {
	ctx := h.conns.Add(c)

	h.mu.Lock()
	h.byID[c.id] = c
	h.mu.Unlock()

	return ctx
}

// Drop removes a connection from every room group and stops its write pump.
func (h *Hub) Drop(c *Client) {
	h.mu.Lock()
	delete(h.byID, c.id)
	for room, members := range h.rooms {
		if _, ok := members[c]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()

	h.conns.Remove(c)
}

// Subscribe adds the connection to a room's broadcast group.
func (h *Hub) Subscribe(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.byID[connID]
	if !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
}

// Unsubscribe removes the connection from a room's broadcast group.
func (h *Hub) Unsubscribe(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.byID[connID]
	if !ok {
		return
	}
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Emit delivers an event to a single connection. Self-emits never cross
// the relay.
func (h *Hub) Emit(connID, event string, payload any) {
	data, err := marshalEnvelope(event, payload)
	if err != nil {
		log.Printf("ws: marshal %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	c, ok := h.byID[connID]
	h.mu.RUnlock()
	if ok {
		h.conns.Send(c, data)
	}
}

// Broadcast delivers an event to every member of a room.
func (h *Hub) Broadcast(room, event string, payload any) {
	data, err := marshalEnvelope(event, payload)
	if err != nil {
		log.Printf("ws: marshal %s event: %v", event, err)
		return
	}
	h.deliverLocal(room, "", data)
	if h.relay != nil && mirrorable(event) {
		h.relay.publish(room, data)
	}
}

// BroadcastExcept delivers an event to every member of a room except one
// connection. The excluded connection is local, so remote instances still
// deliver to all of their members.
func (h *Hub) BroadcastExcept(room, exceptID, event string, payload any) {
	data, err := marshalEnvelope(event, payload)
	if err != nil {
		log.Printf("ws: marshal %s event: %v", event, err)
		return
	}
	h.deliverLocal(room, exceptID, data)
	if h.relay != nil && mirrorable(event) {
		h.relay.publish(room, data)
	}
}

// mirrorable reports whether an event may cross the relay. Roster snapshots
// describe only this instance's members, so they stay local; mirroring one
// would overwrite another instance's roster view with a partial list.
func mirrorable(event string) bool {
	return event != session.EventRoomData
}

// RoomCount returns the number of local connections subscribed to a room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Shutdown closes every tracked connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.rooms = make(map[string]map[*Client]struct{})
	h.byID = make(map[string]*Client)
	h.mu.Unlock()

	h.conns.Shutdown()
}

// deliverLocal fans a frame out to the room's local members. The member set
// is copied so the lock is released before sending.
func (h *Hub) deliverLocal(room, exceptID string, data []byte) {
	h.mu.RLock()
	members := h.rooms[room]
	targets := make([]*Client, 0, len(members))
	for c := range members {
		if exceptID != "" && c.id == exceptID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.conns.Send(c, data)
	}
}
