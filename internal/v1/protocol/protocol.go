// Package protocol implements the JSON wire codec.
//
// Every frame is a single JSON object carrying a "type" discriminator.
// Inbound frames decode into a closed tagged union; outbound frames are
// plain structs marshalled once per broadcast. Unknown inbound types are an
// error the caller answers with INVALID_MESSAGE; unknown *fields* are
// ignored for forward compatibility.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes emitted by the core.
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeRoomNotFound   = "ROOM_NOT_FOUND"
	CodeNotInRoom      = "NOT_IN_ROOM"
	CodeInvalidMove    = "INVALID_MOVE"
	CodeInternalError  = "INTERNAL_ERROR"
	CodeRateLimited    = "RATE_LIMITED"
)

// Client -> server message types.
const (
	TypeAuth  = "auth"
	TypeJoin  = "join"
	TypeLeave = "leave"
	TypeMove  = "move"
	TypeChat  = "chat"
	TypePing  = "ping"
)

// Server -> client message types.
const (
	TypeAuthOK      = "auth_ok"
	TypeAuthError   = "auth_error"
	TypeRoomState   = "room_state"
	TypeAgentJoined = "agent_joined"
	TypeAgentLeft   = "agent_left"
	TypeAgentMoved  = "agent_moved"
	TypeAgentPath   = "agent_path"
	TypeChatMessage = "chat_message"
	TypeError       = "error"
	TypePong        = "pong"
)

// ErrInvalidMessage covers malformed JSON, a missing or non-string type,
// mistyped fields, and a move without both coordinates. Other messages with
// missing fields decode with empty values.
var ErrInvalidMessage = errors.New("invalid message")

// ErrUnknownType marks a well-formed frame whose type is not in the closed
// inbound set.
var ErrUnknownType = errors.New("unknown message type")

// Inbound is the closed set of client -> server messages.
type Inbound interface{ isInbound() }

// Auth carries the bearer token for the handshake.
type Auth struct {
	Token string
}

// Join attaches the socket to a room, addressed by slug or id.
type Join struct {
	RoomID string
}

// Leave detaches the socket from its current room.
type Leave struct{}

// Move requests a walk to the target tile.
type Move struct {
	X int
	Y int
}

// Chat broadcasts a message to the current room.
type Chat struct {
	Message string
}

// Ping requests a pong.
type Ping struct{}

func (Auth) isInbound()  {}
func (Join) isInbound()  {}
func (Leave) isInbound() {}
func (Move) isInbound()  {}
func (Chat) isInbound()  {}
func (Ping) isInbound()  {}

// envelope pulls out just the discriminator. Type is a pointer so a missing
// field is distinguishable from an empty string, and a non-string value
// fails to unmarshal.
type envelope struct {
	Type *string `json:"type"`
}

// Decode parses a single inbound frame. It returns ErrInvalidMessage for
// malformed frames and ErrUnknownType for types outside the closed set.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if env.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}

	switch *env.Type {
	case TypeAuth:
		var p struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return Auth{Token: p.Token}, nil
	case TypeJoin:
		var p struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return Join{RoomID: p.RoomID}, nil
	case TypeLeave:
		return Leave{}, nil
	case TypeMove:
		var p struct {
			X *int `json:"x"`
			Y *int `json:"y"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if p.X == nil || p.Y == nil {
			return nil, fmt.Errorf("%w: move requires x and y", ErrInvalidMessage)
		}
		return Move{X: *p.X, Y: *p.Y}, nil
	case TypeChat:
		var p struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return Chat{Message: p.Message}, nil
	case TypePing:
		return Ping{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, *env.Type)
	}
}
