package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pier0x/bottel/internal/v1/grid"
)

func TestDecodeAuth(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"auth","token":"abc.def.ghi"}`))
	require.NoError(t, err)
	assert.Equal(t, Auth{Token: "abc.def.ghi"}, msg)
}

func TestDecodeJoin(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"join","roomId":"lobby"}`))
	require.NoError(t, err)
	assert.Equal(t, Join{RoomID: "lobby"}, msg)
}

func TestDecodeLeaveAndPing(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"leave"}`))
	require.NoError(t, err)
	assert.Equal(t, Leave{}, msg)

	msg, err = Decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, Ping{}, msg)
}

func TestDecodeMove(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"move","x":3,"y":2}`))
	require.NoError(t, err)
	assert.Equal(t, Move{X: 3, Y: 2}, msg)
}

func TestDecodeMoveMissingCoordinates(t *testing.T) {
	_, err := Decode([]byte(`{"type":"move","x":3}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestDecodeMoveNonIntegerCoordinates(t *testing.T) {
	_, err := Decode([]byte(`{"type":"move","x":"three","y":2}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestDecodeChat(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"chat","message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, Chat{Message: "hi"}, msg)
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestDecodeMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"token":"x"}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestDecodeNonStringType(t *testing.T) {
	_, err := Decode([]byte(`{"type":42}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"teleport"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.False(t, errors.Is(err, ErrInvalidMessage))
}

func TestDecodeToleratesExtraFields(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"chat","message":"hi","clientVersion":"9.9","nested":{"a":1}}`))
	require.NoError(t, err)
	assert.Equal(t, Chat{Message: "hi"}, msg)
}

func TestMarshalErrorFrame(t *testing.T) {
	data := Marshal(NewError(CodeInvalidMove, "position (99,0) out of bounds; room is 14x14"))
	require.NotNil(t, data)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "error", decoded["type"])
	assert.Equal(t, CodeInvalidMove, decoded["code"])
}

func TestMarshalTimestampsAreISO8601(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)
	data := Marshal(NewChatMessageEvent(ChatMessage{
		ID:        "m1",
		RoomID:    "r1",
		AgentID:   "P1",
		AgentName: "Alice",
		Content:   "hi",
		Timestamp: ts,
	}))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "chat_message", decoded["type"])
	assert.Equal(t, "2025-06-01T12:30:45Z", decoded["timestamp"])
}

func TestMarshalAgentPath(t *testing.T) {
	data := Marshal(NewAgentPath("P1", []grid.Point{{X: 1, Y: 1}, {X: 2, Y: 1}}, 4))

	var decoded struct {
		Type    string       `json:"type"`
		AgentID string       `json:"agentId"`
		Path    []grid.Point `json:"path"`
		Speed   float64      `json:"speed"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "agent_path", decoded.Type)
	assert.Equal(t, "P1", decoded.AgentID)
	assert.Len(t, decoded.Path, 2)
	assert.Equal(t, 4.0, decoded.Speed)
}

func TestMarshalAgentMovedSnap(t *testing.T) {
	data := Marshal(NewAgentMoved("P1", 7, 9))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "agent_moved", decoded["type"])
	assert.Equal(t, "P1", decoded["agentId"])
	assert.Equal(t, float64(7), decoded["x"])
	assert.Equal(t, float64(9), decoded["y"])
}

func TestRoomStateDefaultsToEmptySlices(t *testing.T) {
	data := Marshal(NewRoomState(RoomInfo{ID: "r1", Slug: "lobby"}, nil, nil))

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "[]", string(decoded["agents"]))
	assert.Equal(t, "[]", string(decoded["messages"]))
}
