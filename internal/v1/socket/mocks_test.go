package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pier0x/bottel/internal/v1/grid"
	"github.com/pier0x/bottel/internal/v1/store"
)

// nopConn satisfies wsConnection for tests that drive route() directly.
type nopConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *nopConn) ReadMessage() (int, []byte, error) { select {} }
func (c *nopConn) WriteMessage(int, []byte) error    { return nil }
func (c *nopConn) SetWriteDeadline(time.Time) error  { return nil }

func (c *nopConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *nopConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// frameSink drains a client's outbound queue into a slice.
type frameSink struct {
	mu     sync.Mutex
	frames []map[string]any
}

func (s *frameSink) drain(ch <-chan []byte) {
	for data := range ch {
		var m map[string]any
		if json.Unmarshal(data, &m) == nil {
			s.mu.Lock()
			s.frames = append(s.frames, m)
			s.mu.Unlock()
		}
	}
}

func (s *frameSink) ofType(frameType string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, m := range s.frames {
		if m["type"] == frameType {
			out = append(out, m)
		}
	}
	return out
}

func (s *frameSink) has(frameType string) bool {
	return len(s.ofType(frameType)) > 0
}

// fakeStore is the in-memory persistence used by socket tests.
type fakeStore struct {
	mu       sync.Mutex
	rooms    map[string]*store.Room
	messages map[string][]store.Message
	touched  []string
	seq      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:    make(map[string]*store.Room),
		messages: make(map[string][]store.Message),
	}
}

func (s *fakeStore) addRoom(slug, name string) *store.Room {
	g, err := grid.NewOpen(14, 14)
	if err != nil {
		panic(err)
	}
	rec := &store.Room{
		ID:        uuid.New().String(),
		Slug:      slug,
		Name:      name,
		IsPublic:  true,
		Width:     g.Width,
		Height:    g.Height,
		Tiles:     g.Tiles,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.rooms[rec.ID] = rec
	s.mu.Unlock()
	return rec
}

func (s *fakeStore) FindRoomBySlug(_ context.Context, slug string) (*store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.Slug == slug {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) FindRoomByID(_ context.Context, id string) (*store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[id]; ok {
		return r, nil
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) ListPublicRooms(_ context.Context) ([]store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Room
	for _, r := range s.rooms {
		out = append(out, *r)
	}
	return out, nil
}

func (s *fakeStore) RecentMessages(_ context.Context, roomID string, limit int) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[roomID]
	var out []store.Message
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (s *fakeStore) InsertMessage(_ context.Context, roomID string, authorID *string, nameSnapshot, colorSnapshot, content string) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	m := store.Message{
		ID:          fmt.Sprintf("m%d", s.seq),
		RoomID:      roomID,
		AuthorID:    authorID,
		AuthorName:  nameSnapshot,
		AuthorColor: colorSnapshot,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}
	s.messages[roomID] = append(s.messages[roomID], m)
	return &m, nil
}

func (s *fakeStore) TouchLastSeen(_ context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, agentID)
	return nil
}

func (s *fakeStore) touchedAgents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.touched...)
}

func (s *fakeStore) FindUserByID(_ context.Context, _ string) (*store.User, error) {
	return nil, store.ErrNotFound
}

func (s *fakeStore) CreateRoom(_ context.Context, room *store.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	return nil
}

func (s *fakeStore) Ping(context.Context) error { return nil }
func (s *fakeStore) Close() error               { return nil }
