// Package session implements the join/message/leave protocol that drives the
// user registry and decides the broadcast scope of every outbound event.
package session

import (
	"errors"
	"sync"

	"github.com/christopherjohns/chatrelay/internal/message"
	"github.com/christopherjohns/chatrelay/internal/room"
	"github.com/christopherjohns/chatrelay/internal/user"
)

// Outbound event names. Transports must preserve these on the wire.
const (
	EventMessage         = "message"
	EventLocationMessage = "locationMessage"
	EventRoomData        = "roomData"
)

// Error messages are sent verbatim in acknowledgments.
var (
	ErrProfanity = errors.New("Profanity is not allowed!")
	ErrNotJoined = errors.New("join a room first")
)

// Conduit is the connection abstraction the protocol emits through: one
// logical connection per participant that can join named broadcast groups
// and receive events addressed to itself or to a group. Delivery is
// fire-and-forget; confirmation is the transport's concern.
type Conduit interface {
	Subscribe(connID, room string)
	Unsubscribe(connID, room string)
	Emit(connID, event string, payload any)
	Broadcast(room, event string, payload any)
	BroadcastExcept(room, exceptID, event string, payload any)
}

// Protocol is the per-connection state machine: Unjoined → Joined →
// Terminated, with exactly one forward path. It owns all registry mutations
// and serializes them, so room members observe join/message/leave events in
// a single consistent order.
type Protocol struct {
	// mu serializes whole operations, not just registry access: every
	// mutation and its fan-out complete before the next event is processed,
	// so broadcasts cannot interleave.
	mu       sync.Mutex
	registry *user.Registry
	rooms    *room.Index
	conduit  Conduit
	profane  func(string) bool
}

// New creates a Protocol. profane may be nil to disable filtering.
func New(registry *user.Registry, rooms *room.Index, conduit Conduit, profane func(string) bool) *Protocol {
	return &Protocol{
		registry: registry,
		rooms:    rooms,
		conduit:  conduit,
		profane:  profane,
	}
}

// Join moves an unjoined connection into a room. On success the connection is
// subscribed to the room's broadcast group, receives a private welcome, the
// rest of the room is told about the arrival, and everyone gets a fresh
// roster snapshot. The returned error, if any, is the acknowledgment text;
// the connection stays unjoined and may retry.
func (p *Protocol) Join(connID, username, roomName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, err := p.registry.Add(connID, username, roomName)
	if err != nil {
		return err
	}

	p.conduit.Subscribe(connID, u.Room)
	p.conduit.Emit(connID, EventMessage, message.System("Welcome!"))
	p.conduit.BroadcastExcept(u.Room, connID, EventMessage, message.System(u.Username+" has joined!"))
	p.emitRoomData(u.Room)
	return nil
}

// SendMessage broadcasts a text message to every member of the sender's room,
// the sender included. Messages from unjoined connections and messages that
// trip the profanity filter produce an error acknowledgment and no events.
func (p *Protocol) SendMessage(connID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.registry.Get(connID)
	if !ok {
		return ErrNotJoined
	}
	if p.profane != nil && p.profane(text) {
		return ErrProfanity
	}
	p.conduit.Broadcast(u.Room, EventMessage, message.New(u.Username, text))
	return nil
}

// SendLocation broadcasts a map link for the given coordinates to every
// member of the sender's room, the sender included. Location shares are not
// profanity filtered.
func (p *Protocol) SendLocation(connID string, latitude, longitude float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.registry.Get(connID)
	if !ok {
		return ErrNotJoined
	}
	p.conduit.Broadcast(u.Room, EventLocationMessage, message.NewLocation(u.Username, latitude, longitude))
	return nil
}

// Disconnect removes the connection's user, if any, and tells the remaining
// room members about the departure along with an updated roster. Disconnect
// of a connection that never joined is a no-op and emits nothing.
func (p *Protocol) Disconnect(connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.registry.Remove(connID)
	if !ok {
		return
	}

	p.conduit.Unsubscribe(connID, u.Room)
	p.conduit.Broadcast(u.Room, EventMessage, message.System(u.Username+" has left!"))
	p.emitRoomData(u.Room)
}

// emitRoomData broadcasts the current roster snapshot to the whole room.
func (p *Protocol) emitRoomData(roomName string) {
	roster := p.rooms.Roster(roomName)
	if roster == nil {
		roster = []user.User{}
	}
	p.conduit.Broadcast(roomName, EventRoomData, message.RoomData{
		Room:  roomName,
		Users: roster,
	})
}
