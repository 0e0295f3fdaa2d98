package reverse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onebridge/internal/logger"
	"onebridge/internal/sink"
)

// controller is a fake reverse endpoint that records handshakes.
type controller struct {
	t        *testing.T
	url      string
	accepted atomic.Int32
	headers  chan http.Header
	conns    chan *websocket.Conn
	// closeImmediately makes the controller drop every connection right
	// after the handshake.
	closeImmediately bool
}

func newController(t *testing.T, closeImmediately bool) *controller {
	t.Helper()
	c := &controller{
		t:                t,
		headers:          make(chan http.Header, 16),
		conns:            make(chan *websocket.Conn, 16),
		closeImmediately: closeImmediately,
	}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c.accepted.Add(1)
		c.headers <- r.Header.Clone()
		if c.closeImmediately {
			ws.Close()
			return
		}
		c.conns <- ws
	}))
	t.Cleanup(srv.Close)
	c.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return c
}

func (c *controller) nextConn() *websocket.Conn {
	c.t.Helper()
	select {
	case ws := <-c.conns:
		c.t.Cleanup(func() { ws.Close() })
		return ws
	case <-time.After(2 * time.Second):
		c.t.Fatal("no reverse connection")
		return nil
	}
}

func echoHandler(_ context.Context, frame []byte) []byte {
	return frame
}

func newManager(urls []string, interval time.Duration, sinks *sink.Set) *Manager {
	return NewManager(Config{
		URLs:              urls,
		SelfID:            10001,
		AccessToken:       "secret",
		ReconnectInterval: interval,
	}, sinks, echoHandler, logger.NopLogger())
}

func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(msg, &out))
	return out
}

func TestConnectSendsHeadersAndLifecycle(t *testing.T) {
	ctrl := newController(t, false)
	sinks := sink.NewSet()
	m := newManager([]string{ctrl.url}, time.Second, sinks)
	m.Start(context.Background())
	defer m.Stop()

	ws := ctrl.nextConn()
	h := <-ctrl.headers
	assert.Equal(t, "10001", h.Get("X-Self-ID"))
	assert.Equal(t, "Universal", h.Get("X-Client-Role"))
	assert.Equal(t, "OneBot", h.Get("User-Agent"))
	assert.Equal(t, "Bearer secret", h.Get("Authorization"))

	for _, sub := range []string{"connect", "enable"} {
		ev := readJSON(t, ws)
		assert.Equal(t, "meta_event", ev["post_type"])
		assert.Equal(t, "lifecycle", ev["meta_event_type"])
		assert.Equal(t, sub, ev["sub_type"])
	}

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"ping":1}`)))
	assert.Equal(t, map[string]any{"ping": float64(1)}, readJSON(t, ws))

	assert.Eventually(t, func() bool { return sinks.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestReconnectsAfterPeerCloses(t *testing.T) {
	ctrl := newController(t, true)
	m := newManager([]string{ctrl.url}, 20*time.Millisecond, sink.NewSet())
	m.Start(context.Background())
	defer m.Stop()

	assert.Eventually(t, func() bool { return ctrl.accepted.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestReconnectsAfterDialFailure(t *testing.T) {
	var attempts atomic.Int32
	refuse := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer refuse.Close()

	sinks := sink.NewSet()
	m := newManager([]string{"ws" + strings.TrimPrefix(refuse.URL, "http")}, 20*time.Millisecond, sinks)
	m.Start(context.Background())
	defer m.Stop()

	assert.Eventually(t, func() bool { return attempts.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, sinks.Len())
}

func TestStopCancelsScheduledReconnect(t *testing.T) {
	ctrl := newController(t, true)
	m := newManager([]string{ctrl.url}, 150*time.Millisecond, sink.NewSet())
	m.Start(context.Background())

	require.Eventually(t, func() bool { return ctrl.accepted.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	m.Stop()

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), ctrl.accepted.Load())
}

func TestStopClosesOpenConnections(t *testing.T) {
	ctrl := newController(t, false)
	sinks := sink.NewSet()
	m := newManager([]string{ctrl.url}, 20*time.Millisecond, sinks)
	m.Start(context.Background())

	ws := ctrl.nextConn()
	require.Eventually(t, func() bool { return sinks.Len() == 1 }, time.Second, 5*time.Millisecond)

	m.Stop()
	assert.Equal(t, 0, sinks.Len())

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "%v", err)
			break
		}
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), ctrl.accepted.Load())
}

func TestRestartSupersedesOldRun(t *testing.T) {
	ctrl := newController(t, false)
	m := newManager([]string{ctrl.url}, 20*time.Millisecond, sink.NewSet())

	m.Start(context.Background())
	ctrl.nextConn()
	m.Stop()
	m.Start(context.Background())
	defer m.Stop()

	ctrl.nextConn()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(2), ctrl.accepted.Load())
}

func TestStopWithoutStart(t *testing.T) {
	m := newManager(nil, time.Second, sink.NewSet())
	assert.NotPanics(t, m.Stop)
}
