package preview

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugCommand_WireValues(t *testing.T) {
	assert.Equal(t, 0, int(CommandJump))
	assert.Equal(t, 1, int(CommandSyncFromClient))
	assert.Equal(t, 2, int(CommandSyncFromEditor))
	assert.Equal(t, 3, int(CommandExecute))
	assert.Equal(t, 4, int(CommandRefetchTemplates))
	assert.Equal(t, 5, int(CommandSetComponentVisibility))
	assert.Equal(t, 6, int(CommandTempScene))
	assert.Equal(t, 7, int(CommandFontOptimization))
}

func TestDebugCommand_String(t *testing.T) {
	assert.Equal(t, "jump", CommandJump.String())
	assert.Equal(t, "command(42)", DebugCommand(42).String())
	assert.True(t, CommandTempScene.Valid())
	assert.False(t, DebugCommand(-1).Valid())
}

func TestEncode(t *testing.T) {
	frame, err := Encode("", Message{
		Command:  CommandJump,
		SceneMsg: &SceneMessage{Scene: "start.txt", Sentence: 3},
		Message:  "sync",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"event": "message",
		"data": {"command": 0, "sceneMsg": {"sentence": 3, "scene": "start.txt"}, "message": "sync"}
	}`, frame)

	frame, err = Encode(EventProgress, map[string]int{"done": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event": "progress", "data": {"done": 1}}`, frame)
}

func TestEncode_RefetchHasOnlyCommand(t *testing.T) {
	frame, err := Encode(EventMessage, Message{Command: CommandRefetchTemplates})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event": "message", "data": {"command": 4}}`, frame)
}

func TestEncode_Unmarshalable(t *testing.T) {
	_, err := Encode(EventMessage, map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent(`{"event":"message","data":{"command":1,"stageSyncMsg":{"bg":"a.png"}}}`)
	require.NoError(t, err)
	assert.Equal(t, EventMessage, ev.Event)

	msg, err := ev.DecodeMessage()
	require.NoError(t, err)
	assert.Equal(t, CommandSyncFromClient, msg.Command)
	assert.JSONEq(t, `{"bg":"a.png"}`, string(msg.StageSyncMsg))
}

func TestParseEvent_Malformed(t *testing.T) {
	for _, frame := range []string{"", "not json", `{"data":{}}`, `[]`} {
		_, err := ParseEvent(frame)
		assert.ErrorIs(t, err, ErrMalformedEvent, frame)
	}
}

func TestEvent_DecodeMessage_WrongEvent(t *testing.T) {
	_, err := Event{Event: EventError, Data: json.RawMessage(`{}`)}.DecodeMessage()
	assert.ErrorIs(t, err, ErrMalformedEvent)
}
