package preview

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu     sync.Mutex
	frames []string
	err    error
}

func (r *recorder) Broadcast(message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, message)
	return nil
}

func (r *recorder) last(t *testing.T) Message {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.frames)
	ev, err := ParseEvent(r.frames[len(r.frames)-1])
	require.NoError(t, err)
	msg, err := ev.DecodeMessage()
	require.NoError(t, err)
	return msg
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestSceneName(t *testing.T) {
	tests := map[string]string{
		filepath.Join("projects", "demo", "game", "scene", "start.txt"):           "start.txt",
		filepath.Join("projects", "demo", "game", "scene", "chapter1", "a.txt"):   "chapter1/a.txt",
		filepath.Join("loose", "file.txt"):                                         "loose/file.txt",
		filepath.Join("projects", "demo", "game", "scene", "..", "scene", "b.txt"): "b.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, SceneName(in), in)
	}
}

func TestIsJumpLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"", false},
		{"intro:Hello;", true},
		{"changeBg:bg.png;", true},
		{"unlockCg:cg.png", false},
		{"unlockBgm:theme.mp3", false},
		{"unlockCg:cg.png -name=A;", true},
		{"unlockBgm:theme.mp3;", true},
		{"plain text without colon", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsJumpLine(tt.line), tt.line)
	}
}

func TestCommander_SyncScene(t *testing.T) {
	out := &recorder{}
	c := NewCommander(out, DefaultSettings(), zap.NewNop())

	sent, err := c.SyncScene(filepath.Join("demo", "game", "scene", "start.txt"), 12, "say:hi;", false)
	require.NoError(t, err)
	assert.True(t, sent)

	msg := out.last(t)
	assert.Equal(t, CommandJump, msg.Command)
	require.NotNil(t, msg.SceneMsg)
	assert.Equal(t, "start.txt", msg.SceneMsg.Scene)
	assert.Equal(t, 12, msg.SceneMsg.Sentence)
	assert.Equal(t, "sync", msg.Message)
}

func TestCommander_SyncScene_FastPreview(t *testing.T) {
	out := &recorder{}
	c := NewCommander(out, Settings{LivePreview: true, FastPreview: true}, zap.NewNop())

	_, err := c.SyncScene("scene/start.txt", 1, "say:hi;", false)
	require.NoError(t, err)
	assert.Equal(t, "exp", out.last(t).Message)
}

func TestCommander_SyncScene_Skips(t *testing.T) {
	out := &recorder{}
	c := NewCommander(out, Settings{LivePreview: false}, zap.NewNop())

	sent, err := c.SyncScene("scene/start.txt", 1, "say:hi;", false)
	require.NoError(t, err)
	assert.False(t, sent, "live preview off")

	sent, err = c.SyncScene("scene/start.txt", 1, "say:hi;", true)
	require.NoError(t, err)
	assert.True(t, sent, "forced")

	c.SetSettings(DefaultSettings())
	sent, err = c.SyncScene("scene/start.txt", 1, "unlockCg:cg.png", false)
	require.NoError(t, err)
	assert.False(t, sent, "not a jump line")

	assert.Equal(t, 1, out.count())
}

func TestCommander_Commands(t *testing.T) {
	out := &recorder{}
	c := NewCommander(out, DefaultSettings(), zap.NewNop())

	require.NoError(t, c.RunTempScene("say:temp;"))
	msg := out.last(t)
	assert.Equal(t, CommandTempScene, msg.Command)
	assert.Equal(t, "say:temp;", msg.Message)

	require.NoError(t, c.ExecuteCommand("changeBg:a.png;"))
	assert.Equal(t, CommandExecute, out.last(t).Command)

	require.NoError(t, c.SetFontOptimization(true))
	msg = out.last(t)
	assert.Equal(t, CommandFontOptimization, msg.Command)
	assert.Equal(t, "true", msg.Message)

	require.NoError(t, c.RefetchTemplates())
	msg = out.last(t)
	assert.Equal(t, CommandRefetchTemplates, msg.Command)
	assert.Empty(t, msg.Message)
}

func TestCommander_SetComponentVisibility(t *testing.T) {
	out := &recorder{}
	c := NewCommander(out, DefaultSettings(), zap.NewNop())

	require.NoError(t, c.SetComponentVisibility([]ComponentVisibility{
		{Component: ComponentTextBox, Visibility: false},
		{Component: ComponentLogo, Visibility: true},
	}))
	msg := out.last(t)
	assert.Equal(t, CommandSetComponentVisibility, msg.Command)
	assert.JSONEq(t, `[{"component":"showTextBox","visibility":false},{"component":"isShowLogo","visibility":true}]`, msg.Message)

	err := c.SetComponentVisibility([]ComponentVisibility{{Component: "showEverything"}})
	assert.ErrorIs(t, err, ErrUnknownComponent)
	assert.Equal(t, 1, out.count())
}

func TestCommander_BroadcastError(t *testing.T) {
	boom := errors.New("closed")
	c := NewCommander(&recorder{err: boom}, DefaultSettings(), zap.NewNop())
	assert.ErrorIs(t, c.RefetchTemplates(), boom)
}
