package message

import (
	"fmt"
	"time"

	"github.com/christopherjohns/chatrelay/internal/user"
)

// Admin is the username attributed to system notices such as welcome,
// join and leave announcements.
const Admin = "Admin"

// Message is the payload of a "message" event.
type Message struct {
	Username string `json:"username"`
	Text     string `json:"text"`
	// CreatedAt is epoch milliseconds.
	CreatedAt int64 `json:"createdAt"`
}

// Location is the payload of a "locationMessage" event. URL points at a map
// for the shared coordinates.
type Location struct {
	Username  string `json:"username"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"createdAt"`
}

// RoomData is the payload of a "roomData" event: a roster snapshot of one room.
type RoomData struct {
	Room  string      `json:"room"`
	Users []user.User `json:"users"`
}

// New builds a timestamped text message attributed to username.
func New(username, text string) Message {
	return Message{
		Username:  username,
		Text:      text,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// System builds a timestamped message attributed to Admin.
func System(text string) Message {
	return New(Admin, text)
}

// NewLocation builds a timestamped location message with a map link for the
// given coordinates.
func NewLocation(username string, latitude, longitude float64) Location {
	return Location{
		Username:  username,
		URL:       fmt.Sprintf("https://google.com/maps?q=%v,%v", latitude, longitude),
		CreatedAt: time.Now().UnixMilli(),
	}
}
