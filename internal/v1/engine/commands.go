package engine

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pier0x/bottel/internal/v1/protocol"
	"github.com/pier0x/bottel/internal/v1/types"
)

// command is applied by the engine goroutine; implementations may touch
// room state freely.
type command interface {
	apply(r *Room)
}

type attachParticipantCmd struct {
	ident  types.Identity
	client types.ClientInterface
}

type attachSpectatorCmd struct {
	client types.ClientInterface
}

type detachCmd struct {
	client types.ClientInterface
}

type detachAgentCmd struct {
	agentID    string
	disconnect bool
	done       chan struct{}
}

type moveCmd struct {
	agentID string
	x, y    int
	client  types.ClientInterface
}

type chatCmd struct {
	agentID string
	content string
	client  types.ClientInterface
}

type closeCmd struct{}

func (c attachParticipantCmd) apply(r *Room) {
	agentID := string(c.ident.AgentID)

	// A pid is owned by at most one socket; an existing attachment here is
	// displaced before the new one lands.
	if prev, ok := r.participants[agentID]; ok {
		r.removeParticipant(prev, prev.client.ConnID() != c.client.ConnID())
	}

	spawn := r.grid.SpawnPoint()
	p := &Participant{
		ID:     agentID,
		Name:   string(c.ident.Name),
		Color:  c.ident.Color,
		X:      spawn.X,
		Y:      spawn.Y,
		client: c.client,
	}
	r.participants[agentID] = p
	r.participantCount.Store(int64(len(r.participants)))
	r.updateOccupancyMetrics()
	if r.hooks.OnAgentAttach != nil {
		r.hooks.OnAgentAttach(agentID, r)
	}

	// Snapshot first, then announce: the joiner's room_state already
	// contains itself, everyone else learns about it via agent_joined.
	sendTo(c.client, r.buildRoomState())
	r.broadcastExcept(protocol.NewAgentJoined(r.agentInfo(p)), c.client.ConnID())
	r.logAttach("participant", agentID)
}

func (c attachSpectatorCmd) apply(r *Room) {
	r.spectators[c.client.ConnID()] = c.client
	r.spectatorCount.Store(int64(len(r.spectators)))
	r.updateOccupancyMetrics()

	sendTo(c.client, r.buildRoomState())
	r.logAttach("spectator", c.client.ConnID())
}

func (c detachCmd) apply(r *Room) {
	connID := c.client.ConnID()

	if _, ok := r.spectators[connID]; ok {
		delete(r.spectators, connID)
		r.spectatorCount.Store(int64(len(r.spectators)))
		r.updateOccupancyMetrics()
		r.maybeEmpty()
		return
	}

	for _, p := range r.participants {
		if p.client.ConnID() == connID {
			r.removeParticipant(p, false)
			r.maybeEmpty()
			return
		}
	}
}

func (c detachAgentCmd) apply(r *Room) {
	if c.done != nil {
		defer close(c.done)
	}
	p, ok := r.participants[c.agentID]
	if !ok {
		return
	}
	r.removeParticipant(p, c.disconnect)
	r.maybeEmpty()
}

// removeParticipant drops the participant, announces agent_left to whoever
// remains, and optionally force-closes the displaced socket.
func (r *Room) removeParticipant(p *Participant, disconnect bool) {
	delete(r.participants, p.ID)
	r.participantCount.Store(int64(len(r.participants)))
	r.updateOccupancyMetrics()
	if r.hooks.OnAgentDetach != nil {
		r.hooks.OnAgentDetach(p.ID, r)
	}

	r.broadcast(protocol.NewAgentLeft(p.ID))
	if disconnect {
		p.client.Disconnect()
	}
}

func (c moveCmd) apply(r *Room) {
	p, ok := r.participants[c.agentID]
	if !ok {
		sendTo(c.client, protocol.NewError(protocol.CodeNotInRoom, "not attached to this room"))
		return
	}

	if !r.grid.InBounds(c.x, c.y) {
		sendTo(c.client, protocol.NewError(protocol.CodeInvalidMove,
			fmt.Sprintf("position (%d,%d) out of bounds; room is %dx%d", c.x, c.y, r.grid.Width, r.grid.Height)))
		return
	}
	if !r.grid.Walkable(c.x, c.y) {
		sendTo(c.client, protocol.NewError(protocol.CodeInvalidMove,
			fmt.Sprintf("tile (%d,%d) is not walkable", c.x, c.y)))
		return
	}

	from := gridPoint(p.X, p.Y)
	to := gridPoint(c.x, c.y)
	if from == to {
		return
	}

	path := r.grid.FindPath(from, to)
	if len(path) == 0 {
		sendTo(c.client, protocol.NewError(protocol.CodeInvalidMove,
			fmt.Sprintf("no walkable path from (%d,%d) to (%d,%d)", p.X, p.Y, c.x, c.y)))
		return
	}

	// The logical position commits instantly; clients animate the path at
	// the advertised speed. A mid-walk move therefore replans from the
	// previous destination.
	p.X, p.Y = c.x, c.y
	r.broadcast(protocol.NewAgentPath(p.ID, path, r.opts.WalkSpeed))
}

func (c chatCmd) apply(r *Room) {
	p, ok := r.participants[c.agentID]
	if !ok {
		sendTo(c.client, protocol.NewError(protocol.CodeNotInRoom, "not attached to this room"))
		return
	}

	content := strings.TrimSpace(c.content)
	if content == "" {
		return
	}
	content = truncateRunes(content, r.opts.MessageMaxLen)

	msg, err := r.store.InsertMessage(r.ctx(), r.rec.ID, &p.ID, p.Name, p.Color, content)
	if err != nil {
		slog.Error("failed to persist chat message", "room", r.rec.Slug, "agent", p.ID, "error", err)
		sendTo(c.client, protocol.NewError(protocol.CodeInternalError, "message could not be saved"))
		return
	}

	r.history.PushBack(*msg)
	for r.history.Len() > r.opts.HistoryLimit {
		r.history.Remove(r.history.Front())
	}

	r.broadcast(protocol.NewChatMessageEvent(wireMessage(*msg)))
}

func (closeCmd) apply(r *Room) {
	for _, p := range r.participants {
		p.client.Disconnect()
	}
	for _, s := range r.spectators {
		s.Disconnect()
	}
	r.participants = make(map[string]*Participant)
	r.spectators = make(map[string]types.ClientInterface)
	r.participantCount.Store(0)
	r.spectatorCount.Store(0)
	r.stop()
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
