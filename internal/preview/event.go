// Package preview speaks the debug protocol understood by the game engine
// running inside a preview.
//
// Every frame on the sync channel is a JSON envelope:
//
//	{"event": "message", "data": {"command": 0, ...}}
//
// where command is a DebugCommand and the remaining data fields depend on it.
package preview

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names used on the envelope.
const (
	EventMessage  = "message"
	EventProgress = "progress"
	EventError    = "error"
)

// DebugCommand identifies a debug protocol command. The numeric values are
// part of the wire format.
type DebugCommand int

const (
	CommandJump DebugCommand = iota
	CommandSyncFromClient
	CommandSyncFromEditor
	CommandExecute
	CommandRefetchTemplates
	CommandSetComponentVisibility
	CommandTempScene
	CommandFontOptimization
)

var commandNames = map[DebugCommand]string{
	CommandJump:                   "jump",
	CommandSyncFromClient:         "sync_from_client",
	CommandSyncFromEditor:         "sync_from_editor",
	CommandExecute:                "execute",
	CommandRefetchTemplates:       "refetch_templates",
	CommandSetComponentVisibility: "set_component_visibility",
	CommandTempScene:              "temp_scene",
	CommandFontOptimization:       "font_optimization",
}

func (c DebugCommand) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// Valid reports whether c is a known command.
func (c DebugCommand) Valid() bool {
	_, ok := commandNames[c]
	return ok
}

var ErrMalformedEvent = errors.New("malformed event")

// Event is the envelope of every sync frame.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SceneMessage locates a sentence inside a scene file.
type SceneMessage struct {
	Sentence int    `json:"sentence"`
	Scene    string `json:"scene"`
}

// Message is the data payload of a debug command. Only the fields relevant
// to Command are set.
type Message struct {
	Command  DebugCommand  `json:"command"`
	SceneMsg *SceneMessage `json:"sceneMsg,omitempty"`
	Message  string        `json:"message,omitempty"`
	// StageSyncMsg carries the engine's stage state on client sync frames.
	StageSyncMsg json.RawMessage `json:"stageSyncMsg,omitempty"`
}

// Encode wraps data in an envelope and returns the frame text. An empty
// event name means EventMessage.
func Encode(event string, data any) (string, error) {
	if event == "" {
		event = EventMessage
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s data: %w", event, err)
	}
	frame, err := json.Marshal(Event{Event: event, Data: raw})
	if err != nil {
		return "", fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	return string(frame), nil
}

// ParseEvent decodes a frame envelope.
func ParseEvent(frame string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(frame), &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Event == "" {
		return Event{}, fmt.Errorf("%w: missing event name", ErrMalformedEvent)
	}
	return ev, nil
}

// DecodeMessage decodes the data of a message event.
func (e Event) DecodeMessage() (Message, error) {
	if e.Event != EventMessage {
		return Message{}, fmt.Errorf("%w: event %q carries no command", ErrMalformedEvent, e.Event)
	}
	var msg Message
	if err := json.Unmarshal(e.Data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return msg, nil
}
