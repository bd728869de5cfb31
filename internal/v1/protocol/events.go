package protocol

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pier0x/bottel/internal/v1/grid"
	"github.com/pier0x/bottel/internal/v1/types"
)

// AgentInfo is the wire view of a participant in a room.
type AgentInfo struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Avatar types.Avatar `json:"avatar"`
	X      int          `json:"x"`
	Y      int          `json:"y"`
}

// RoomInfo is the wire view of a room record.
type RoomInfo struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Slug          string        `json:"slug"`
	Description   string        `json:"description,omitempty"`
	OwnerID       string        `json:"ownerId,omitempty"`
	OwnerUsername string        `json:"ownerUsername,omitempty"`
	Width         int           `json:"width"`
	Height        int           `json:"height"`
	Tiles         [][]grid.Tile `json:"tiles"`
	CreatedAt     time.Time     `json:"createdAt"`
	IsPublic      bool          `json:"isPublic"`
}

// ChatMessage is the wire view of a chat message, carrying the name and
// avatar snapshots captured at insert time.
type ChatMessage struct {
	ID           string             `json:"id"`
	RoomID       string             `json:"roomId"`
	AgentID      string             `json:"agentId,omitempty"`
	AgentName    string             `json:"agentName"`
	AvatarConfig types.AvatarConfig `json:"avatarConfig"`
	Content      string             `json:"content"`
	Timestamp    time.Time          `json:"timestamp"`
}

// AuthOK acknowledges a successful handshake.
type AuthOK struct {
	Type    string       `json:"type"`
	AgentID string       `json:"agentId"`
	Name    string       `json:"name"`
	Avatar  types.Avatar `json:"avatar"`
}

// AuthError reports a failed handshake; the socket stays open.
type AuthError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// RoomState is the full snapshot sent on every join.
type RoomState struct {
	Type     string        `json:"type"`
	Room     RoomInfo      `json:"room"`
	Agents   []AgentInfo   `json:"agents"`
	Messages []ChatMessage `json:"messages"`
}

// AgentJoined announces a new participant to the rest of the room.
type AgentJoined struct {
	Type  string    `json:"type"`
	Agent AgentInfo `json:"agent"`
}

// AgentLeft announces a participant detaching.
type AgentLeft struct {
	Type    string `json:"type"`
	AgentID string `json:"agentId"`
}

// AgentMoved snaps a participant to a tile without animation.
type AgentMoved struct {
	Type    string `json:"type"`
	AgentID string `json:"agentId"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
}

// AgentPath broadcasts a full walk; clients interpolate at Speed tiles/sec.
type AgentPath struct {
	Type    string       `json:"type"`
	AgentID string       `json:"agentId"`
	Path    []grid.Point `json:"path"`
	Speed   float64      `json:"speed"`
}

// ChatMessageEvent fans a chat message out to the room.
type ChatMessageEvent struct {
	Type string `json:"type"`
	ChatMessage
}

// ErrorFrame is a targeted error with a machine code and human message.
type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Pong answers a ping.
type Pong struct {
	Type string `json:"type"`
}

func NewAuthOK(agentID, name, bodyColor string) AuthOK {
	return AuthOK{
		Type:    TypeAuthOK,
		AgentID: agentID,
		Name:    name,
		Avatar:  types.Avatar{ID: agentID, AgentID: agentID, BodyColor: bodyColor},
	}
}

func NewAuthError(reason string) AuthError {
	return AuthError{Type: TypeAuthError, Error: reason}
}

func NewAgentJoined(agent AgentInfo) AgentJoined {
	return AgentJoined{Type: TypeAgentJoined, Agent: agent}
}

func NewAgentLeft(agentID string) AgentLeft {
	return AgentLeft{Type: TypeAgentLeft, AgentID: agentID}
}

func NewAgentMoved(agentID string, x, y int) AgentMoved {
	return AgentMoved{Type: TypeAgentMoved, AgentID: agentID, X: x, Y: y}
}

func NewAgentPath(agentID string, path []grid.Point, speed float64) AgentPath {
	return AgentPath{Type: TypeAgentPath, AgentID: agentID, Path: path, Speed: speed}
}

func NewChatMessageEvent(msg ChatMessage) ChatMessageEvent {
	return ChatMessageEvent{Type: TypeChatMessage, ChatMessage: msg}
}

func NewRoomState(room RoomInfo, agents []AgentInfo, messages []ChatMessage) RoomState {
	if agents == nil {
		agents = []AgentInfo{}
	}
	if messages == nil {
		messages = []ChatMessage{}
	}
	return RoomState{Type: TypeRoomState, Room: room, Agents: agents, Messages: messages}
}

func NewError(code, message string) ErrorFrame {
	return ErrorFrame{Type: TypeError, Code: code, Message: message}
}

func NewPong() Pong {
	return Pong{Type: TypePong}
}

// Marshal serializes an outbound frame. Outbound frames are our own structs,
// so a marshal failure is a programming error; it is logged and the frame
// dropped rather than tearing anything down.
func Marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal outbound frame", "error", err)
		return nil
	}
	return data
}
