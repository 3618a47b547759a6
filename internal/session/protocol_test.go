package session

import (
	"errors"
	"strings"
	"testing"

	"github.com/christopherjohns/chatrelay/internal/message"
	"github.com/christopherjohns/chatrelay/internal/room"
	"github.com/christopherjohns/chatrelay/internal/user"
)

// emitted records one delivery decision made by the protocol.
type emitted struct {
	kind    string // "emit", "broadcast", "broadcastExcept"
	target  string // connID for emit, room otherwise
	except  string
	event   string
	payload any
}

// fakeConduit records subscriptions and deliveries instead of sending them.
type fakeConduit struct {
	subs   map[string]string // connID → room
	events []emitted
}

func newFakeConduit() *fakeConduit {
	return &fakeConduit{subs: make(map[string]string)}
}

func (f *fakeConduit) Subscribe(connID, room string)   { f.subs[connID] = room }
func (f *fakeConduit) Unsubscribe(connID, room string) { delete(f.subs, connID) }

func (f *fakeConduit) Emit(connID, event string, payload any) {
	f.events = append(f.events, emitted{kind: "emit", target: connID, event: event, payload: payload})
}

func (f *fakeConduit) Broadcast(room, event string, payload any) {
	f.events = append(f.events, emitted{kind: "broadcast", target: room, event: event, payload: payload})
}

func (f *fakeConduit) BroadcastExcept(room, exceptID, event string, payload any) {
	f.events = append(f.events, emitted{kind: "broadcastExcept", target: room, except: exceptID, event: event, payload: payload})
}

func (f *fakeConduit) reset() { f.events = nil }

func newTestProtocol(profane func(string) bool) (*Protocol, *fakeConduit, *user.Registry) {
	reg := user.NewRegistry()
	conduit := newFakeConduit()
	p := New(reg, room.NewIndex(reg), conduit, profane)
	return p, conduit, reg
}

func TestJoinEmitsWelcomeAndRoomEvents(t *testing.T) {
	p, conduit, _ := newTestProtocol(nil)

	if err := p.Join("connA", "alice", "lobby"); err != nil {
		t.Fatalf("unexpected join error: %v", err)
	}

	if conduit.subs["connA"] != "lobby" {
		t.Errorf("expected connA subscribed to lobby, got %q", conduit.subs["connA"])
	}
	if len(conduit.events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(conduit.events), conduit.events)
	}

	// Self-only welcome, attributed to Admin.
	welcome := conduit.events[0]
	if welcome.kind != "emit" || welcome.target != "connA" || welcome.event != EventMessage {
		t.Errorf("unexpected welcome event: %+v", welcome)
	}
	if msg := welcome.payload.(message.Message); msg.Username != message.Admin || msg.Text != "Welcome!" {
		t.Errorf("unexpected welcome payload: %+v", msg)
	}

	// Arrival announcement excludes the joiner.
	joined := conduit.events[1]
	if joined.kind != "broadcastExcept" || joined.target != "lobby" || joined.except != "connA" {
		t.Errorf("unexpected join announcement: %+v", joined)
	}
	if msg := joined.payload.(message.Message); msg.Text != "alice has joined!" {
		t.Errorf("unexpected join text: %q", msg.Text)
	}

	// Roster snapshot goes to the whole room, joiner included.
	roster := conduit.events[2]
	if roster.kind != "broadcast" || roster.event != EventRoomData {
		t.Errorf("unexpected roster event: %+v", roster)
	}
	data := roster.payload.(message.RoomData)
	if data.Room != "lobby" || len(data.Users) != 1 || data.Users[0].Username != "alice" {
		t.Errorf("unexpected roster payload: %+v", data)
	}
}

func TestJoinSecondUserRosterIncludesBoth(t *testing.T) {
	p, conduit, _ := newTestProtocol(nil)
	p.Join("connA", "alice", "lobby")
	conduit.reset()

	if err := p.Join("connB", "bob", "lobby"); err != nil {
		t.Fatalf("unexpected join error: %v", err)
	}

	joined := conduit.events[1]
	if joined.except != "connB" {
		t.Errorf("join announcement should exclude the joiner, got except=%q", joined.except)
	}
	if msg := joined.payload.(message.Message); msg.Text != "bob has joined!" {
		t.Errorf("unexpected join text: %q", msg.Text)
	}

	data := conduit.events[2].payload.(message.RoomData)
	if len(data.Users) != 2 {
		t.Fatalf("expected 2 users in roster, got %d", len(data.Users))
	}
	if data.Users[0].Username != "alice" || data.Users[1].Username != "bob" {
		t.Errorf("unexpected roster order: %+v", data.Users)
	}
}

func TestJoinValidationFailureEmitsNothing(t *testing.T) {
	p, conduit, reg := newTestProtocol(nil)

	err := p.Join("connA", "   ", "lobby")
	if !errors.Is(err, user.ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
	if len(conduit.events) != 0 {
		t.Errorf("expected no events on failed join, got %+v", conduit.events)
	}
	if len(conduit.subs) != 0 {
		t.Errorf("expected no subscriptions on failed join")
	}
	if reg.Count() != 0 {
		t.Errorf("expected empty registry, got %d users", reg.Count())
	}
}

func TestJoinDuplicateUsernameAllowsRetry(t *testing.T) {
	p, conduit, _ := newTestProtocol(nil)
	p.Join("connA", "alice", "lobby")
	conduit.reset()

	if err := p.Join("connB", "Alice", "lobby"); !errors.Is(err, user.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if len(conduit.events) != 0 {
		t.Errorf("expected no events on duplicate join, got %+v", conduit.events)
	}

	// The connection stayed unjoined and may retry with a corrected name.
	if err := p.Join("connB", "bob", "lobby"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestSendMessageBroadcastsToWholeRoom(t *testing.T) {
	p, conduit, _ := newTestProtocol(nil)
	p.Join("connA", "alice", "lobby")
	p.Join("connB", "bob", "lobby")
	conduit.reset()

	if err := p.SendMessage("connA", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(conduit.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(conduit.events))
	}
	ev := conduit.events[0]
	if ev.kind != "broadcast" || ev.target != "lobby" || ev.event != EventMessage {
		t.Errorf("unexpected event: %+v", ev)
	}
	msg := ev.payload.(message.Message)
	if msg.Username != "alice" || msg.Text != "hello" {
		t.Errorf("unexpected payload: %+v", msg)
	}
	if msg.CreatedAt == 0 {
		t.Error("expected a timestamp")
	}
}

func TestSendMessageProfanityBlocked(t *testing.T) {
	profane := func(text string) bool { return strings.Contains(text, "darn") }
	p, conduit, _ := newTestProtocol(profane)
	p.Join("connA", "alice", "lobby")
	conduit.reset()

	err := p.SendMessage("connA", "darn it")
	if !errors.Is(err, ErrProfanity) {
		t.Fatalf("expected ErrProfanity, got %v", err)
	}
	if err.Error() != "Profanity is not allowed!" {
		t.Errorf("unexpected ack text: %q", err.Error())
	}
	if len(conduit.events) != 0 {
		t.Errorf("expected no events for filtered message, got %+v", conduit.events)
	}
}

func TestSendMessageUnjoined(t *testing.T) {
	p, conduit, _ := newTestProtocol(nil)

	if err := p.SendMessage("ghost", "hello"); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined, got %v", err)
	}
	if len(conduit.events) != 0 {
		t.Errorf("expected no events, got %+v", conduit.events)
	}
}

func TestSendLocation(t *testing.T) {
	p, conduit, _ := newTestProtocol(nil)
	p.Join("connA", "alice", "lobby")
	conduit.reset()

	if err := p.SendLocation("connA", 10, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := conduit.events[0]
	if ev.kind != "broadcast" || ev.event != EventLocationMessage {
		t.Errorf("unexpected event: %+v", ev)
	}
	loc := ev.payload.(message.Location)
	if loc.Username != "alice" || !strings.Contains(loc.URL, "q=10,20") {
		t.Errorf("unexpected payload: %+v", loc)
	}
}

func TestSendLocationSkipsProfanityFilter(t *testing.T) {
	// A filter that rejects everything must not affect location shares.
	p, conduit, _ := newTestProtocol(func(string) bool { return true })
	p.Join("connA", "alice", "lobby")
	conduit.reset()

	if err := p.SendLocation("connA", 1, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conduit.events) != 1 {
		t.Errorf("expected the location broadcast, got %+v", conduit.events)
	}
}

func TestSendLocationUnjoined(t *testing.T) {
	p, _, _ := newTestProtocol(nil)
	if err := p.SendLocation("ghost", 1, 2); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined, got %v", err)
	}
}

func TestDisconnectAnnouncesDeparture(t *testing.T) {
	p, conduit, reg := newTestProtocol(nil)
	p.Join("connA", "alice", "lobby")
	p.Join("connB", "bob", "lobby")
	conduit.reset()

	p.Disconnect("connB")

	if _, ok := reg.Get("connB"); ok {
		t.Error("expected bob removed from the registry")
	}
	if _, ok := conduit.subs["connB"]; ok {
		t.Error("expected bob unsubscribed")
	}

	if len(conduit.events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(conduit.events), conduit.events)
	}
	left := conduit.events[0]
	if msg := left.payload.(message.Message); msg.Username != message.Admin || msg.Text != "bob has left!" {
		t.Errorf("unexpected departure message: %+v", msg)
	}
	data := conduit.events[1].payload.(message.RoomData)
	if len(data.Users) != 1 || data.Users[0].Username != "alice" {
		t.Errorf("expected roster [alice], got %+v", data.Users)
	}
}

func TestDisconnectLastMemberEmptyRoster(t *testing.T) {
	p, conduit, _ := newTestProtocol(nil)
	p.Join("connA", "alice", "lobby")
	conduit.reset()

	p.Disconnect("connA")

	data := conduit.events[1].payload.(message.RoomData)
	if len(data.Users) != 0 {
		t.Errorf("expected empty roster, got %+v", data.Users)
	}
}

func TestDisconnectNeverJoinedIsSilent(t *testing.T) {
	p, conduit, _ := newTestProtocol(nil)

	p.Disconnect("ghost")
	if len(conduit.events) != 0 {
		t.Errorf("expected no events, got %+v", conduit.events)
	}

	// Double disconnect is equally silent.
	p.Join("connA", "alice", "lobby")
	p.Disconnect("connA")
	conduit.reset()
	p.Disconnect("connA")
	if len(conduit.events) != 0 {
		t.Errorf("expected no events on double disconnect, got %+v", conduit.events)
	}
}
