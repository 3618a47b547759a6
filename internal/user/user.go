package user

// User represents one joined participant. A User is created by a successful
// join and exists until its connection disconnects; there is no rename or
// room-change operation.
type User struct {
	// ConnID is the opaque connection identifier assigned by the transport.
	// Internal only, never serialized to clients.
	ConnID   string `json:"-"`
	Username string `json:"username"`
	Room     string `json:"room"`
}
