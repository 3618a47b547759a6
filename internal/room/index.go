package room

import (
	"sort"

	"github.com/christopherjohns/chatrelay/internal/user"
)

// Source supplies the membership snapshot the index is computed from.
// The user registry implements it.
type Source interface {
	Users() []user.User
	ListInRoom(room string) []user.User
}

// Summary describes one active room for listing endpoints.
type Summary struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// Index is a derived view grouping registered users by room. Rooms are not
// stored anywhere: a room exists exactly as long as it has members, so the
// index recomputes from the registry on every query and can never drift
// from actual membership.
type Index struct {
	src Source
}

// NewIndex creates an Index over the given membership source.
func NewIndex(src Source) *Index {
	return &Index{src: src}
}

// Roster returns the current members of a room in registry order.
func (ix *Index) Roster(room string) []user.User {
	return ix.src.ListInRoom(room)
}

// Rooms returns a summary of every room that currently has members,
// sorted by member count descending, then by name for a stable order.
func (ix *Index) Rooms() []Summary {
	counts := make(map[string]int)
	for _, u := range ix.src.Users() {
		counts[u.Room]++
	}

	result := make([]Summary, 0, len(counts))
	for name, members := range counts {
		result = append(result, Summary{Name: name, Members: members})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Members != result[j].Members {
			return result[i].Members > result[j].Members
		}
		return result[i].Name < result[j].Name
	})
	return result
}
