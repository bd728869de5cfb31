package registry

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

// fakeStore is an in-memory Store for registry tests.
type fakeStore struct {
	mu       sync.Mutex
	rooms    map[string]*store.Room // by id
	users    map[string]*store.User
	messages map[string][]store.Message // by room id, oldest first
	touched  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:    make(map[string]*store.Room),
		users:    make(map[string]*store.User),
		messages: make(map[string][]store.Message),
	}
}

func (s *fakeStore) addRoom(slug, name string, ownerID *string, public bool) *store.Room {
	g, err := grid.NewOpen(14, 14)
	if err != nil {
		panic(err)
	}
	rec := &store.Room{
		ID:        uuid.New().String(),
		Slug:      slug,
		Name:      name,
		OwnerID:   ownerID,
		IsPublic:  public,
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

func (s *fakeStore) addUser(id, username string) {
	s.mu.Lock()
	s.users[id] = &store.User{ID: id, Username: username}
	s.mu.Unlock()
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
		if r.IsPublic {
			out = append(out, *r)
		}
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
	m := store.Message{
		ID:          fmt.Sprintf("m%d", len(s.messages[roomID])+1),
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

func (s *fakeStore) FindUserByID(_ context.Context, id string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) CreateRoom(_ context.Context, room *store.Room) error {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	return nil
}

func (s *fakeStore) Ping(context.Context) error { return nil }
func (s *fakeStore) Close() error               { return nil }

// stubClient satisfies types.ClientInterface for occupancy bookkeeping.
type stubClient struct {
	id string
}

func (c *stubClient) ConnID() string { return c.id }
func (c *stubClient) Send([]byte)    {}
func (c *stubClient) Disconnect()    {}

// collectorClient additionally records the frames it receives.
type collectorClient struct {
	id string

	mu     sync.Mutex
	frames [][]byte
}

func newCollectorClient(id string) *collectorClient {
	return &collectorClient{id: id}
}

func (c *collectorClient) ConnID() string { return c.id }
func (c *collectorClient) Disconnect()    {}

func (c *collectorClient) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, data)
}

// roomState returns the first room_state frame received, decoded, or nil.
func (c *collectorClient) roomState() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.frames {
		var m map[string]any
		if json.Unmarshal(f, &m) == nil && m["type"] == "room_state" {
			return m
		}
	}
	return nil
}
