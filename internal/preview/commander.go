package preview

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Broadcaster publishes a frame to every connected preview.
type Broadcaster interface {
	Broadcast(message string) error
}

// Settings control how editor edits are mirrored into previews.
type Settings struct {
	// LivePreview follows the cursor in the editor. When off, SyncScene only
	// sends when forced.
	LivePreview bool `json:"live_preview"`
	// FastPreview asks the engine to fast-forward instead of replaying.
	FastPreview bool `json:"fast_preview"`
}

// DefaultSettings returns the settings a fresh editor starts with.
func DefaultSettings() Settings {
	return Settings{LivePreview: true}
}

// Jump message modes.
const (
	modeSync = "sync"
	modeExp  = "exp"
)

// Commander sends debug commands to every connected preview.
type Commander struct {
	out    Broadcaster
	logger *zap.Logger

	mu       sync.RWMutex
	settings Settings
}

// NewCommander creates a commander publishing through out.
func NewCommander(out Broadcaster, settings Settings, logger *zap.Logger) *Commander {
	return &Commander{
		out:      out,
		logger:   logger.Named("commander"),
		settings: settings,
	}
}

// Settings returns the current settings.
func (c *Commander) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// SetSettings replaces the settings.
func (c *Commander) SetSettings(s Settings) {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
}

// SendCommand encodes msg under event (EventMessage when empty) and
// broadcasts it.
func (c *Commander) SendCommand(msg Message, event string) error {
	frame, err := Encode(event, msg)
	if err != nil {
		return err
	}
	if err := c.out.Broadcast(frame); err != nil {
		return fmt.Errorf("send %s: %w", msg.Command, err)
	}
	c.logger.Debug("Sent debug command", zap.Stringer("command", msg.Command))
	return nil
}

// SyncScene jumps previews to line of the scene at scenePath. It reports
// whether a command was sent: nothing is sent while live preview is off
// (unless force is set) or when lineText is not a jump target.
func (c *Commander) SyncScene(scenePath string, line int, lineText string, force bool) (bool, error) {
	settings := c.Settings()
	if !settings.LivePreview && !force {
		return false, nil
	}
	if !IsJumpLine(lineText) {
		return false, nil
	}

	mode := modeSync
	if settings.FastPreview {
		mode = modeExp
	}

	err := c.SendCommand(Message{
		Command: CommandJump,
		SceneMsg: &SceneMessage{
			Scene:    SceneName(scenePath),
			Sentence: line,
		},
		Message: mode,
	}, EventMessage)
	if err != nil {
		return false, err
	}
	return true, nil
}

// RunTempScene runs script as a throwaway scene.
func (c *Commander) RunTempScene(script string) error {
	return c.SendCommand(Message{Command: CommandTempScene, Message: script}, EventMessage)
}

// ExecuteCommand runs a single script command in the current scene.
func (c *Commander) ExecuteCommand(command string) error {
	return c.SendCommand(Message{Command: CommandExecute, Message: command}, EventMessage)
}

// SetComponentVisibility shows or hides engine UI components.
func (c *Commander) SetComponentVisibility(changes []ComponentVisibility) error {
	for _, ch := range changes {
		if !ch.Component.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownComponent, ch.Component)
		}
	}
	payload, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("failed to encode visibility: %w", err)
	}
	return c.SendCommand(Message{Command: CommandSetComponentVisibility, Message: string(payload)}, EventMessage)
}

// SetFontOptimization toggles the engine's font optimization.
func (c *Commander) SetFontOptimization(enabled bool) error {
	return c.SendCommand(Message{Command: CommandFontOptimization, Message: strconv.FormatBool(enabled)}, EventMessage)
}

// RefetchTemplates makes previews reload template style files.
func (c *Commander) RefetchTemplates() error {
	return c.SendCommand(Message{Command: CommandRefetchTemplates}, EventMessage)
}

// SceneName returns the part of scenePath below its "scene" directory,
// slash separated. A path without a scene directory is returned whole.
func SceneName(scenePath string) string {
	parts := strings.Split(filepath.ToSlash(filepath.Clean(scenePath)), "/")
	for i, part := range parts {
		if part == "scene" {
			return strings.Join(parts[i+1:], "/")
		}
	}
	return strings.Join(parts, "/")
}

// IsJumpLine reports whether a scene line can be jumped to. unlockCg and
// unlockBgm lines without a terminating ';' cannot.
func IsJumpLine(line string) bool {
	if line == "" {
		return false
	}
	command, _, _ := strings.Cut(line, ":")
	special := command == "unlockCg" || command == "unlockBgm"
	return !(special && !strings.Contains(line, ";"))
}
