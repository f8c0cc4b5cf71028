package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/A-kirami/webgal-craft/internal/websocket"
)

func newTestSupervisor(t *testing.T, state *AppState) *Supervisor {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := NewRouter(state, testRouterOptions(), zap.NewNop())
	s := NewSupervisor(SupervisorConfig{
		Name:            "preview",
		ShutdownTimeout: time.Second,
		Fallback:        true,
	}, router, state.Metrics, zap.NewNop())
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func wsURL(base, path string) string {
	return "ws" + strings.TrimPrefix(base, "http") + path
}

func dialSync(t *testing.T, state *AppState, base string) *gorilla.Conn {
	t.Helper()
	ws, _, err := gorilla.DefaultDialer.Dial(wsURL(base, "/api/webgalsync"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	addr := ws.LocalAddr().String()
	require.Eventually(t, func() bool { return state.Hub.IsConnected(addr) }, 2*time.Second, 10*time.Millisecond)
	return ws
}

func readMessage(t *testing.T, ws *gorilla.Conn) string {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
}

func TestSupervisor_Lifecycle(t *testing.T) {
	s := newTestSupervisor(t, newTestState(t))
	assert.Equal(t, StateStopped, s.State())
	assert.Empty(t, s.Address())

	port := freePort(t)
	url, err := s.Start(context.Background(), "127.0.0.1", port)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("http://127.0.0.1:%d", port), url)
	assert.Equal(t, StateRunning, s.State())

	resp, err := http.Get(url + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, StateStopped, s.State())
	assert.Empty(t, s.Address())

	_, err = http.Get(url + "/health")
	assert.Error(t, err)

	// Stopping twice is a no-op.
	require.NoError(t, s.Stop(context.Background()))

	url, err = s.Start(context.Background(), "127.0.0.1", port)
	require.NoError(t, err)
	resp, err = http.Get(url + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSupervisor_RestartReplacesListener(t *testing.T) {
	s := newTestSupervisor(t, newTestState(t))

	first, err := s.Start(context.Background(), "127.0.0.1", freePort(t))
	require.NoError(t, err)
	second, err := s.Start(context.Background(), "127.0.0.1", freePort(t))
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = http.Get(first + "/health")
	assert.Error(t, err, "previous listener must be retired")

	resp, err := http.Get(second + "/health")
	require.NoError(t, err)
	resp.Body.Close()
}

func TestSupervisor_FallbackPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	busyPort := busy.Addr().(*net.TCPAddr).Port

	s := newTestSupervisor(t, newTestState(t))
	url, err := s.Start(context.Background(), "127.0.0.1", busyPort)
	require.NoError(t, err)

	_, portStr, err := net.SplitHostPort(strings.TrimPrefix(url, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	assert.NotEqual(t, busyPort, port)
	assert.NotZero(t, port)
}

func TestSupervisor_NoFallback(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	busyPort := busy.Addr().(*net.TCPAddr).Port

	s := NewSupervisor(SupervisorConfig{Name: "control"}, http.NotFoundHandler(), nil, zap.NewNop())
	_, err = s.Start(context.Background(), "127.0.0.1", busyPort)

	var bindErr *BindError
	require.True(t, errors.As(err, &bindErr))
	assert.Nil(t, bindErr.Fallback)
	assert.Equal(t, StateStopped, s.State())
}

func TestSupervisor_BindError(t *testing.T) {
	s := newTestSupervisor(t, newTestState(t))
	_, err := s.Start(context.Background(), "203.0.113.255", 1)

	var bindErr *BindError
	require.True(t, errors.As(err, &bindErr))
	assert.Error(t, bindErr.Primary)
	assert.Error(t, bindErr.Fallback)
	assert.Contains(t, err.Error(), "fallback")
	assert.Equal(t, StateStopped, s.State())
}

func TestSupervisor_ConcurrentStartStop(t *testing.T) {
	s := newTestSupervisor(t, newTestState(t))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = s.Start(context.Background(), "127.0.0.1", 0)
			} else {
				_ = s.Stop(context.Background())
			}
		}(i)
	}
	wg.Wait()

	state := s.State()
	assert.True(t, state == StateRunning || state == StateStopped, state.String())
	if state == StateRunning {
		resp, err := http.Get("http://" + s.Address() + "/health")
		require.NoError(t, err)
		resp.Body.Close()
	}
}

func TestSupervisor_ConnectionsSurviveRestart(t *testing.T) {
	state := newTestState(t)
	s := newTestSupervisor(t, state)

	url, err := s.Start(context.Background(), "127.0.0.1", 0)
	require.NoError(t, err)
	ws := dialSync(t, state, url)

	_, err = s.Start(context.Background(), "127.0.0.1", 0)
	require.NoError(t, err)

	require.NoError(t, state.Hub.Broadcast("after-restart"))
	assert.Equal(t, "after-restart", readMessage(t, ws))

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, state.Hub.Unicast(ws.LocalAddr().String(), "after-stop"))
	assert.Equal(t, "after-stop", readMessage(t, ws))
}

func TestSupervisor_StaticContentEndToEnd(t *testing.T) {
	state := newTestState(t)
	id, err := state.Sites.Add(writeSite(t))
	require.NoError(t, err)

	s := newTestSupervisor(t, state)
	url, err := s.Start(context.Background(), "127.0.0.1", 0)
	require.NoError(t, err)

	resp, err := http.Get(url + "/game/" + id + "/game/scene/start.txt")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "intro;", string(body))
}

func TestSupervisor_ManyClientsInOrder(t *testing.T) {
	state := newTestState(t)
	s := newTestSupervisor(t, state)
	url, err := s.Start(context.Background(), "127.0.0.1", 0)
	require.NoError(t, err)

	const clients, messages = 8, 50
	conns := make([]*gorilla.Conn, clients)
	for i := range conns {
		conns[i] = dialSync(t, state, url)
	}
	require.ElementsMatch(t, state.Hub.Clients(), clientAddrs(conns))

	for i := 0; i < messages; i++ {
		require.NoError(t, state.Hub.Broadcast(fmt.Sprintf("m-%d", i)))
	}

	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for _, ws := range conns {
		wg.Add(1)
		go func(ws *gorilla.Conn) {
			defer wg.Done()
			for i := 0; i < messages; i++ {
				_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
				_, data, err := ws.ReadMessage()
				if err != nil {
					errs <- err
					return
				}
				if want := fmt.Sprintf("m-%d", i); string(data) != want {
					errs <- fmt.Errorf("got %q, want %q", data, want)
					return
				}
			}
		}(ws)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestSupervisor_StalledClientDoesNotBlockOthers(t *testing.T) {
	const (
		capacity = 5
		total    = 100
	)

	state := newTestState(t)
	cfg := websocket.DefaultConfig()
	cfg.BroadcastCapacity = capacity
	cfg.WriteTimeout = 30 * time.Second
	state.Hub = websocket.NewManager(cfg, state.Metrics, zap.NewNop())
	t.Cleanup(state.Hub.Close)

	s := newTestSupervisor(t, state)
	url, err := s.Start(context.Background(), "127.0.0.1", 0)
	require.NoError(t, err)

	stalled := dialSync(t, state, url)
	active := dialSync(t, state, url)

	// Frames large enough that the stalled socket's kernel buffers fill and
	// its session falls behind the broadcast.
	padding := strings.Repeat("x", 512<<10)
	for i := 0; i < total; i++ {
		msg := fmt.Sprintf("s-%03d|%s", i, padding)
		require.NoError(t, state.Hub.Broadcast(msg))
		require.Equal(t, msg, readMessage(t, active))
	}
	assert.True(t, state.Hub.IsConnected(stalled.LocalAddr().String()))

	// The stalled client now reads back what survived: an increasing sequence
	// with gaps that still ends at the newest message.
	var got []int
	for len(got) == 0 || got[len(got)-1] != total-1 {
		require.NoError(t, stalled.SetReadDeadline(time.Now().Add(10*time.Second)))
		_, data, err := stalled.ReadMessage()
		require.NoError(t, err)

		head, _, ok := strings.Cut(string(data), "|")
		require.True(t, ok)
		n, err := strconv.Atoi(strings.TrimPrefix(head, "s-"))
		require.NoError(t, err)
		if len(got) > 0 {
			require.Greater(t, n, got[len(got)-1], "messages out of order")
		}
		got = append(got, n)
	}

	assert.Less(t, len(got), total, "stalled client should have missed messages")
}

func clientAddrs(conns []*gorilla.Conn) []string {
	out := make([]string, len(conns))
	for i, ws := range conns {
		out[i] = ws.LocalAddr().String()
	}
	return out
}
