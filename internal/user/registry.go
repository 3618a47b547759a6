package user

import (
	"errors"
	"strings"
	"sync"
)

// Error messages are sent verbatim to clients in acknowledgments.
var (
	ErrMissingFields = errors.New("username and room are required")
	ErrUsernameTaken = errors.New("username is in use")
	ErrAlreadyJoined = errors.New("already joined a room")
)

// Registry is the in-memory store of active connection→user bindings. It is
// the single source of truth for room membership; rosters are always derived
// from it rather than cached elsewhere.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]User
	order  []string // conn IDs in insertion order
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]User),
	}
}

// Add validates and stores a new User bound to connID. Username and room are
// trimmed and required. Usernames are unique within a room, compared
// case-insensitively. A connection may hold at most one User.
func (r *Registry) Add(connID, username, room string) (User, error) {
	username = strings.TrimSpace(username)
	room = strings.TrimSpace(room)
	if username == "" || room == "" {
		return User{}, ErrMissingFields
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[connID]; ok {
		return User{}, ErrAlreadyJoined
	}
	for _, id := range r.order {
		u := r.byConn[id]
		if u.Room == room && strings.EqualFold(u.Username, username) {
			return User{}, ErrUsernameTaken
		}
	}

	u := User{ConnID: connID, Username: username, Room: room}
	r.byConn[connID] = u
	r.order = append(r.order, connID)
	return u, nil
}

// Remove deletes and returns the User bound to connID. Removing an unknown
// connection is not an error; it reports false.
func (r *Registry) Remove(connID string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byConn[connID]
	if !ok {
		return User{}, false
	}
	delete(r.byConn, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return u, true
}

// Get returns the User bound to connID, if any.
func (r *Registry) Get(connID string) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byConn[connID]
	return u, ok
}

// ListInRoom returns every User whose room exactly matches, in insertion
// order. Callers must not depend on the ordering.
func (r *Registry) ListInRoom(room string) []User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []User
	for _, id := range r.order {
		if u := r.byConn[id]; u.Room == room {
			result = append(result, u)
		}
	}
	return result
}

// Users returns a snapshot of every registered User in insertion order.
func (r *Registry) Users() []User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]User, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.byConn[id])
	}
	return result
}

// Count returns the number of registered users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
