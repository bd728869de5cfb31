// Package store is the persistence capability consumed by the core.
//
// The core needs room records, the chat log, and user lookups; everything
// else about the relational schema belongs to the REST surface. Every call
// is a self-contained transaction; no multi-statement atomicity is required.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/pier0x/bottel/internal/v1/grid"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("store: not found")

// Room is a persisted room record.
type Room struct {
	ID          string
	Slug        string
	Name        string
	Description string
	OwnerID     *string
	IsPublic    bool
	Width       int
	Height      int
	Tiles       [][]grid.Tile
	CreatedAt   time.Time
}

// Message is a persisted chat message. AuthorID is nil once the author
// account is deleted; the name and color snapshots survive regardless.
type Message struct {
	ID          string
	RoomID      string
	AuthorID    *string
	AuthorName  string
	AuthorColor string
	Content     string
	CreatedAt   time.Time
}

// User is the subset of the account record the core reads.
type User struct {
	ID       string
	Username string
}

// Store is the persistence interface the core consumes.
type Store interface {
	FindRoomBySlug(ctx context.Context, slug string) (*Room, error)
	FindRoomByID(ctx context.Context, id string) (*Room, error)
	ListPublicRooms(ctx context.Context) ([]Room, error)

	// RecentMessages returns up to limit messages for the room, newest first.
	RecentMessages(ctx context.Context, roomID string, limit int) ([]Message, error)
	// InsertMessage persists a chat message, assigning id and timestamp.
	InsertMessage(ctx context.Context, roomID string, authorID *string, nameSnapshot, colorSnapshot, content string) (*Message, error)

	TouchLastSeen(ctx context.Context, agentID string) error
	FindUserByID(ctx context.Context, id string) (*User, error)

	// CreateRoom persists a new room record; used to bootstrap the
	// canonical room when it is missing at startup.
	CreateRoom(ctx context.Context, room *Room) error

	Ping(ctx context.Context) error
	Close() error
}
