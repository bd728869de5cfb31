// Package engine implements the per-room authoritative state machine.
//
// Every loaded room runs exactly one engine. The engine is the single
// writer of its state: all mutation arrives as commands on a channel and is
// applied by the engine goroutine, which also fans the resulting events out
// to every attached socket. That serialization is what keeps join/leave
// broadcasts, movement, chat persistence and history trimming atomic with
// respect to each other.
package engine

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pier0x/bottel/internal/v1/grid"
	"github.com/pier0x/bottel/internal/v1/metrics"
	"github.com/pier0x/bottel/internal/v1/protocol"
	"github.com/pier0x/bottel/internal/v1/store"
	"github.com/pier0x/bottel/internal/v1/types"
)

const commandBuffer = 64

// Options are the per-room tunables, taken from configuration.
type Options struct {
	HistoryLimit  int
	MessageMaxLen int
	WalkSpeed     float64
}

// Hooks are the registry callbacks. OnEmpty fires after the last attachment
// leaves; the agent hooks keep the registry's participant index current so a
// pid can be found (and displaced) from any socket.
type Hooks struct {
	OnEmpty       func(roomID string)
	OnAgentAttach func(agentID string, r *Room)
	OnAgentDetach func(agentID string, r *Room)
}

// Participant is a connected, positioned occupant of the room.
type Participant struct {
	ID     string
	Name   string
	Color  string
	X      int
	Y      int
	client types.ClientInterface
}

// Room owns one room's authoritative state. All fields below cmds are
// touched only by the engine goroutine.
type Room struct {
	rec           *store.Room
	grid          *grid.Grid
	ownerUsername string
	store         store.Store
	opts          Options
	hooks         Hooks

	cmds     chan command
	done     chan struct{}
	stopOnce sync.Once

	participants map[string]*Participant          // by agent id
	spectators   map[string]types.ClientInterface // by connection id
	history      *list.List                       // of store.Message, oldest at front

	// Read lock-free by registry discovery queries.
	participantCount atomic.Int64
	spectatorCount   atomic.Int64
}

// NewRoom builds an engine around a loaded room record and starts its
// command loop. history must be in chronological order and already capped
// at the history limit.
func NewRoom(rec *store.Room, g *grid.Grid, ownerUsername string, history []store.Message, st store.Store, opts Options, hooks Hooks) *Room {
	r := &Room{
		rec:           rec,
		grid:          g,
		ownerUsername: ownerUsername,
		store:         st,
		opts:          opts,
		hooks:         hooks,
		cmds:          make(chan command, commandBuffer),
		done:          make(chan struct{}),
		participants:  make(map[string]*Participant),
		spectators:    make(map[string]types.ClientInterface),
		history:       list.New(),
	}
	for _, m := range history {
		r.history.PushBack(m)
	}
	go r.run()
	return r
}

func (r *Room) run() {
	for {
		select {
		case cmd := <-r.cmds:
			cmd.apply(r)
		case <-r.done:
			return
		}
	}
}

// enqueue hands a command to the engine goroutine. It reports false when
// the engine has already shut down, in which case the command is dropped.
func (r *Room) enqueue(cmd command) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.cmds <- cmd:
		return true
	case <-r.done:
		return false
	}
}

// --- Accessors safe from any goroutine ---

func (r *Room) ID() string   { return r.rec.ID }
func (r *Room) Slug() string { return r.rec.Slug }
func (r *Room) Name() string { return r.rec.Name }

// Record returns the immutable persisted room record.
func (r *Room) Record() *store.Room { return r.rec }

func (r *Room) ParticipantCount() int { return int(r.participantCount.Load()) }
func (r *Room) SpectatorCount() int   { return int(r.spectatorCount.Load()) }

// --- Command dispatch ---

// AttachParticipant places an authenticated participant in the room and
// registers its socket for fan-out.
func (r *Room) AttachParticipant(ident types.Identity, client types.ClientInterface) {
	r.enqueue(attachParticipantCmd{ident: ident, client: client})
}

// AttachSpectator registers a read-only socket for fan-out.
func (r *Room) AttachSpectator(client types.ClientInterface) {
	r.enqueue(attachSpectatorCmd{client: client})
}

// Detach removes whatever attachment the socket holds in this room.
func (r *Room) Detach(client types.ClientInterface) {
	r.enqueue(detachCmd{client: client})
}

// DetachAgent removes a participant by id, optionally force-closing its
// socket. Used when a second socket authenticates as the same pid. It
// blocks until the engine has applied the detach, so a pid never sits in
// two engines at once during a displacement.
func (r *Room) DetachAgent(agentID string, disconnect bool) {
	done := make(chan struct{})
	if !r.enqueue(detachAgentCmd{agentID: agentID, disconnect: disconnect, done: done}) {
		return
	}
	select {
	case <-done:
	case <-r.done:
	}
}

// Move walks a participant to the target tile. Validation errors go back to
// the mover only.
func (r *Room) Move(agentID string, x, y int, client types.ClientInterface) {
	r.enqueue(moveCmd{agentID: agentID, x: x, y: y, client: client})
}

// Chat persists and broadcasts a chat message from the participant.
func (r *Room) Chat(agentID, content string, client types.ClientInterface) {
	r.enqueue(chatCmd{agentID: agentID, content: content, client: client})
}

// Close disconnects every attached socket and stops the engine loop. It is
// idempotent and safe from any goroutine.
func (r *Room) Close() {
	r.enqueue(closeCmd{})
}

func gridPoint(x, y int) grid.Point {
	return grid.Point{X: x, Y: y}
}

// Done is closed when the engine loop has stopped.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) ctx() context.Context {
	return context.Background()
}

// stop is invoked from inside the loop only.
func (r *Room) stop() {
	r.stopOnce.Do(func() {
		metrics.RoomParticipants.DeleteLabelValues(r.rec.ID)
		metrics.RoomSpectators.DeleteLabelValues(r.rec.ID)
		close(r.done)
	})
}

// --- Fan-out ---

// broadcast marshals the frame once and enqueues it on every attached
// socket, spectators included.
func (r *Room) broadcast(frame any) {
	data := protocol.Marshal(frame)
	if data == nil {
		return
	}
	for _, p := range r.participants {
		p.client.Send(data)
	}
	for _, s := range r.spectators {
		s.Send(data)
	}
}

// broadcastExcept skips the socket with the given connection id.
func (r *Room) broadcastExcept(frame any, connID string) {
	data := protocol.Marshal(frame)
	if data == nil {
		return
	}
	for _, p := range r.participants {
		if p.client.ConnID() != connID {
			p.client.Send(data)
		}
	}
	for _, s := range r.spectators {
		if s.ConnID() != connID {
			s.Send(data)
		}
	}
}

func sendTo(client types.ClientInterface, frame any) {
	if data := protocol.Marshal(frame); data != nil {
		client.Send(data)
	}
}

// --- Snapshots ---

func (r *Room) agentInfo(p *Participant) protocol.AgentInfo {
	return protocol.AgentInfo{
		ID:   p.ID,
		Name: p.Name,
		Avatar: types.Avatar{
			ID:        p.ID,
			AgentID:   p.ID,
			BodyColor: p.Color,
		},
		X: p.X,
		Y: p.Y,
	}
}

func (r *Room) roomInfo() protocol.RoomInfo {
	info := protocol.RoomInfo{
		ID:            r.rec.ID,
		Name:          r.rec.Name,
		Slug:          r.rec.Slug,
		Description:   r.rec.Description,
		OwnerUsername: r.ownerUsername,
		Width:         r.grid.Width,
		Height:        r.grid.Height,
		Tiles:         r.grid.Tiles,
		CreatedAt:     r.rec.CreatedAt,
		IsPublic:      r.rec.IsPublic,
	}
	if r.rec.OwnerID != nil {
		info.OwnerID = *r.rec.OwnerID
	}
	return info
}

func wireMessage(m store.Message) protocol.ChatMessage {
	msg := protocol.ChatMessage{
		ID:           m.ID,
		RoomID:       m.RoomID,
		AgentName:    m.AuthorName,
		AvatarConfig: types.AvatarConfig{BodyColor: m.AuthorColor},
		Content:      m.Content,
		Timestamp:    m.CreatedAt,
	}
	if m.AuthorID != nil {
		msg.AgentID = *m.AuthorID
	}
	return msg
}

// buildRoomState snapshots the room for a joining socket.
func (r *Room) buildRoomState() protocol.RoomState {
	agents := make([]protocol.AgentInfo, 0, len(r.participants))
	for _, p := range r.participants {
		agents = append(agents, r.agentInfo(p))
	}
	messages := make([]protocol.ChatMessage, 0, r.history.Len())
	for e := r.history.Front(); e != nil; e = e.Next() {
		messages = append(messages, wireMessage(e.Value.(store.Message)))
	}
	return protocol.NewRoomState(r.roomInfo(), agents, messages)
}

func (r *Room) updateOccupancyMetrics() {
	metrics.RoomParticipants.WithLabelValues(r.rec.ID).Set(float64(len(r.participants)))
	metrics.RoomSpectators.WithLabelValues(r.rec.ID).Set(float64(len(r.spectators)))
}

// maybeEmpty notifies the registry when the last attachment is gone.
func (r *Room) maybeEmpty() {
	if len(r.participants) == 0 && len(r.spectators) == 0 && r.hooks.OnEmpty != nil {
		go r.hooks.OnEmpty(r.rec.ID)
	}
}

func (r *Room) logAttach(kind, id string) {
	slog.Info("attached to room", "room", r.rec.Slug, "kind", kind, "id", id)
}
