package socket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pier0x/bottel/internal/v1/metrics"
	"github.com/pier0x/bottel/internal/v1/protocol"
	"github.com/pier0x/bottel/internal/v1/store"
	"github.com/pier0x/bottel/internal/v1/types"
)

// sendFrame marshals and enqueues a frame on this socket.
func (c *Client) sendFrame(frame any) {
	if data := protocol.Marshal(frame); data != nil {
		c.Send(data)
	}
}

// route is the session state machine. Every inbound frame lands here, on
// the readPump goroutine, so per-socket handling is naturally serialized.
func (c *Client) route(data []byte) {
	start := time.Now()

	msg, err := protocol.Decode(data)
	if err != nil {
		metrics.WebsocketEvents.WithLabelValues("invalid", "error").Inc()
		c.sendFrame(protocol.NewError(protocol.CodeInvalidMessage, "malformed or unknown message"))
		return
	}

	eventType := "unknown"
	switch m := msg.(type) {
	case protocol.Ping:
		eventType = protocol.TypePing
		c.sendFrame(protocol.NewPong())
	case protocol.Auth:
		eventType = protocol.TypeAuth
		c.handleAuth(m)
	case protocol.Join:
		eventType = protocol.TypeJoin
		c.handleJoin(m)
	case protocol.Leave:
		eventType = protocol.TypeLeave
		c.handleLeave()
	case protocol.Move:
		eventType = protocol.TypeMove
		c.handleMove(m)
	case protocol.Chat:
		eventType = protocol.TypeChat
		c.handleChat(m)
	}

	metrics.WebsocketEvents.WithLabelValues(eventType, "ok").Inc()
	metrics.MessageProcessingDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
}

// handleAuth verifies the token. Failure leaves the socket exactly where it
// was; success records (or replaces) the identity.
func (c *Client) handleAuth(m protocol.Auth) {
	claims, err := c.srv.validator.ValidateToken(m.Token)
	if err != nil {
		slog.Info("auth failed", "connId", c.connID, "error", err)
		c.sendFrame(protocol.NewAuthError("invalid or expired token"))
		return
	}

	ident := &types.Identity{
		AgentID: types.AgentIDType(claims.Subject),
		Name:    types.DisplayNameType(claims.Name),
		Color:   claims.BodyColor,
	}

	// A re-auth on the same socket replaces the identity; an attachment
	// under the old identity does not survive it. A re-auth as the same pid
	// (token refresh) leaves everything in place.
	prev := c.identity()
	if prev != nil && prev.AgentID != ident.AgentID {
		c.detachFromRoom()
	}
	if prev == nil || prev.AgentID != ident.AgentID {
		// A fresh auth with a pid some other socket holds attached
		// displaces that socket.
		if other := c.srv.registry.EngineForAgent(string(ident.AgentID)); other != nil {
			other.DetachAgent(string(ident.AgentID), true)
		}
	}

	c.setIdentity(ident)

	if err := c.srv.store.TouchLastSeen(context.Background(), claims.Subject); err != nil {
		slog.Warn("failed to touch last seen", "agent", claims.Subject, "error", err)
	}

	c.sendFrame(protocol.NewAuthOK(claims.Subject, claims.Name, claims.BodyColor))
}

// handleJoin attaches the socket to a room, as a participant when
// authenticated and as a spectator otherwise. A join while attached
// elsewhere switches rooms atomically from the socket's point of view.
func (c *Client) handleJoin(m protocol.Join) {
	ctx := context.Background()

	eng, err := c.srv.registry.Resolve(ctx, m.RoomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.sendFrame(protocol.NewError(protocol.CodeRoomNotFound, fmt.Sprintf("room %q not found", m.RoomID)))
		} else {
			slog.Error("failed to load room", "room", m.RoomID, "error", err)
			c.sendFrame(protocol.NewError(protocol.CodeInternalError, "room could not be loaded"))
		}
		return
	}

	if current := c.currentRoom(); current != nil && current != eng {
		current.Detach(c)
	}

	ident := c.identity()
	if ident != nil {
		// Displace any other socket holding this pid in a different room;
		// the target engine handles an in-room duplicate itself.
		if other := c.srv.registry.EngineForAgent(string(ident.AgentID)); other != nil && other != eng {
			other.DetachAgent(string(ident.AgentID), true)
		}
		eng.AttachParticipant(*ident, c)
	} else {
		eng.AttachSpectator(c)
	}
	c.setRoom(eng)
}

func (c *Client) handleLeave() {
	room := c.currentRoom()
	if room == nil {
		c.sendFrame(protocol.NewError(protocol.CodeNotInRoom, "not attached to a room"))
		return
	}
	room.Detach(c)
	c.setRoom(nil)
}

func (c *Client) handleMove(m protocol.Move) {
	room, ident := c.currentRoom(), c.identity()
	if room == nil || ident == nil {
		c.sendFrame(protocol.NewError(protocol.CodeNotInRoom, "not joined as a participant"))
		return
	}
	if !c.srv.commands.AllowMove(context.Background(), c.connID) {
		c.sendFrame(protocol.NewError(protocol.CodeRateLimited, "too many moves"))
		return
	}
	room.Move(string(ident.AgentID), m.X, m.Y, c)
}

func (c *Client) handleChat(m protocol.Chat) {
	room, ident := c.currentRoom(), c.identity()
	if room == nil || ident == nil {
		c.sendFrame(protocol.NewError(protocol.CodeNotInRoom, "not joined as a participant"))
		return
	}
	if !c.srv.commands.AllowChat(context.Background(), c.connID) {
		c.sendFrame(protocol.NewError(protocol.CodeRateLimited, "too many messages"))
		return
	}
	room.Chat(string(ident.AgentID), m.Message, c)
}
