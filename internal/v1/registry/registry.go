// Package registry owns the process-wide map from room id to room engine.
//
// Rooms are loaded lazily on first attach and unloaded once empty, with a
// short grace period so a page refresh does not tear a room down and
// rebuild it. The canonical room is the exception: it is created at startup
// when missing and never unloaded.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pier0x/bottel/internal/v1/engine"
	"github.com/pier0x/bottel/internal/v1/grid"
	"github.com/pier0x/bottel/internal/v1/metrics"
	"github.com/pier0x/bottel/internal/v1/store"
)

// DefaultUnloadGracePeriod is how long an empty room stays loaded before
// the registry lets go of it.
const DefaultUnloadGracePeriod = 2 * time.Second

// Options configure every engine the registry instantiates.
type Options struct {
	CanonicalSlug     string
	HistoryLimit      int
	MessageMaxLen     int
	WalkSpeed         float64
	UnloadGracePeriod time.Duration
}

// Registry is safe for concurrent use from any socket handler.
type Registry struct {
	store store.Store
	opts  Options

	mu             sync.Mutex
	rooms          map[string]*engine.Room // by room id
	slugs          map[string]string       // slug -> room id
	agents         map[string]*engine.Room // agent id -> owning engine
	pendingUnloads map[string]*time.Timer
}

// New creates an empty registry.
func New(st store.Store, opts Options) *Registry {
	if opts.UnloadGracePeriod <= 0 {
		opts.UnloadGracePeriod = DefaultUnloadGracePeriod
	}
	return &Registry{
		store:          st,
		opts:           opts,
		rooms:          make(map[string]*engine.Room),
		slugs:          make(map[string]string),
		agents:         make(map[string]*engine.Room),
		pendingUnloads: make(map[string]*time.Timer),
	}
}

// EnsureCanonical creates the canonical room when it is missing and loads
// it so it is resident from startup on.
func (reg *Registry) EnsureCanonical(ctx context.Context) error {
	_, err := reg.store.FindRoomBySlug(ctx, reg.opts.CanonicalSlug)
	if errors.Is(err, store.ErrNotFound) {
		g, gerr := grid.NewOpen(20, 20)
		if gerr != nil {
			return gerr
		}
		rec := &store.Room{
			Slug:     reg.opts.CanonicalSlug,
			Name:     "Lobby",
			IsPublic: true,
			Width:    g.Width,
			Height:   g.Height,
			Tiles:    g.Tiles,
		}
		if cerr := reg.store.CreateRoom(ctx, rec); cerr != nil {
			return fmt.Errorf("failed to create canonical room: %w", cerr)
		}
		slog.Info("created canonical room", "slug", reg.opts.CanonicalSlug)
	} else if err != nil {
		return fmt.Errorf("failed to look up canonical room: %w", err)
	}

	_, err = reg.LoadBySlug(ctx, reg.opts.CanonicalSlug)
	return err
}

// LoadByID returns the engine for the room, instantiating it when needed.
func (reg *Registry) LoadByID(ctx context.Context, id string) (*engine.Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[id]; ok {
		reg.cancelPendingUnloadLocked(id)
		return r, nil
	}

	rec, err := reg.store.FindRoomByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return reg.loadLocked(ctx, rec)
}

// LoadBySlug resolves the slug index and loads the room.
func (reg *Registry) LoadBySlug(ctx context.Context, slug string) (*engine.Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if id, ok := reg.slugs[slug]; ok {
		if r, ok := reg.rooms[id]; ok {
			reg.cancelPendingUnloadLocked(id)
			return r, nil
		}
	}

	rec, err := reg.store.FindRoomBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return reg.loadLocked(ctx, rec)
}

// Resolve accepts a slug or a room id, the way the join command does.
func (reg *Registry) Resolve(ctx context.Context, ref string) (*engine.Room, error) {
	if r, err := reg.LoadBySlug(ctx, ref); err == nil {
		return r, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return reg.LoadByID(ctx, ref)
}

// loadLocked instantiates an engine from a persisted record. Caller holds
// reg.mu; the record is trusted to be well-formed apart from legacy border
// data, which is normalized here.
func (reg *Registry) loadLocked(ctx context.Context, rec *store.Room) (*engine.Room, error) {
	if r, ok := reg.rooms[rec.ID]; ok {
		return r, nil
	}

	// Normalization happens on a copy; the persisted tile data stays as-is.
	tiles := make([][]grid.Tile, len(rec.Tiles))
	for i, row := range rec.Tiles {
		tiles[i] = append([]grid.Tile(nil), row...)
	}
	g, err := grid.New(rec.Width, rec.Height, tiles)
	if err != nil {
		return nil, fmt.Errorf("room %s has a broken map: %w", rec.ID, err)
	}
	g.NormalizeBorders()

	recent, err := reg.store.RecentMessages(ctx, rec.ID, reg.opts.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for room %s: %w", rec.ID, err)
	}
	// Newest-first from the store; the engine wants chronological order.
	history := make([]store.Message, len(recent))
	for i, m := range recent {
		history[len(recent)-1-i] = m
	}

	ownerUsername := ""
	if rec.OwnerID != nil {
		if owner, uerr := reg.store.FindUserByID(ctx, *rec.OwnerID); uerr == nil {
			ownerUsername = owner.Username
		} else if !errors.Is(uerr, store.ErrNotFound) {
			slog.Warn("failed to resolve room owner", "room", rec.Slug, "error", uerr)
		}
	}

	r := engine.NewRoom(rec, g, ownerUsername, history, reg.store, engine.Options{
		HistoryLimit:  reg.opts.HistoryLimit,
		MessageMaxLen: reg.opts.MessageMaxLen,
		WalkSpeed:     reg.opts.WalkSpeed,
	}, engine.Hooks{
		OnEmpty:       reg.onEngineEmpty,
		OnAgentAttach: reg.onAgentAttach,
		OnAgentDetach: reg.onAgentDetach,
	})

	reg.rooms[rec.ID] = r
	reg.slugs[rec.Slug] = rec.ID
	metrics.LoadedRooms.Inc()
	slog.Info("loaded room", "room", rec.Slug, "id", rec.ID)
	return r, nil
}

// EngineForAgent reports which engine currently holds the participant, if
// any. Used to displace a prior socket when a pid authenticates again.
func (reg *Registry) EngineForAgent(agentID string) *engine.Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.agents[agentID]
}

func (reg *Registry) onAgentAttach(agentID string, r *engine.Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.agents[agentID] = r
}

func (reg *Registry) onAgentDetach(agentID string, r *engine.Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	// Only clear the index if this engine still owns the pid; an attach in
	// another room may already have overwritten it.
	if reg.agents[agentID] == r {
		delete(reg.agents, agentID)
	}
}

func (reg *Registry) cancelPendingUnloadLocked(id string) {
	if timer, ok := reg.pendingUnloads[id]; ok {
		timer.Stop()
		delete(reg.pendingUnloads, id)
	}
}

// onEngineEmpty schedules the unload after a grace period so reconnects do
// not thrash room state. The canonical room is never unloaded.
func (reg *Registry) onEngineEmpty(roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[roomID]
	if !ok || r.Slug() == reg.opts.CanonicalSlug {
		return
	}

	reg.cancelPendingUnloadLocked(roomID)
	reg.pendingUnloads[roomID] = time.AfterFunc(reg.opts.UnloadGracePeriod, func() {
		reg.unload(roomID)
	})
}

func (reg *Registry) unload(roomID string) {
	reg.mu.Lock()
	r, ok := reg.rooms[roomID]
	delete(reg.pendingUnloads, roomID)
	if !ok || r.ParticipantCount() > 0 || r.SpectatorCount() > 0 {
		reg.mu.Unlock()
		if ok {
			slog.Info("cancelled room unload, room is occupied again", "id", roomID)
		}
		return
	}
	delete(reg.rooms, roomID)
	delete(reg.slugs, r.Slug())
	metrics.LoadedRooms.Dec()
	reg.mu.Unlock()

	// Engine shutdown happens outside the lock; its hooks take reg.mu.
	r.Close()
	slog.Info("unloaded empty room", "room", r.Slug(), "id", roomID)
}

// Shutdown closes every loaded engine and waits for their loops to stop.
func (reg *Registry) Shutdown(ctx context.Context) error {
	reg.mu.Lock()
	for id, timer := range reg.pendingUnloads {
		timer.Stop()
		delete(reg.pendingUnloads, id)
	}
	rooms := make([]*engine.Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.rooms = make(map[string]*engine.Room)
	reg.slugs = make(map[string]string)
	reg.agents = make(map[string]*engine.Room)
	reg.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
	for _, r := range rooms {
		select {
		case <-r.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	metrics.LoadedRooms.Set(0)
	slog.Info("all rooms closed", "count", len(rooms))
	return nil
}
