package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onebridge/internal/logger"
)

type fakeSink struct {
	id, kind string
	closed   int
}

func (f *fakeSink) ID() string               { return f.id }
func (f *fakeSink) Kind() string             { return f.kind }
func (f *fakeSink) Send([]byte) error        { return nil }
func (f *fakeSink) Close(code int, _ string) { f.closed = code }

func TestSetRegistry(t *testing.T) {
	s := NewSet()
	a := &fakeSink{id: "b", kind: KindForward}
	b := &fakeSink{id: "a", kind: KindReverse}

	s.Add(a)
	s.Add(b)
	s.Add(a)
	assert.Equal(t, 2, s.Len())

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].ID())

	s.CloseAll(KindReverse, websocket.CloseGoingAway, "")
	assert.Equal(t, websocket.CloseGoingAway, b.closed)
	assert.Zero(t, a.closed)

	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))
	assert.Equal(t, 1, s.Len())
}

// serveConn upgrades each request into a Conn and hands it to onConn.
func serveConn(t *testing.T, onConn func(c *Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		onConn(NewConn(ws, KindForward, r.RemoteAddr, logger.NopLogger()))
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestConnRepliesToFrames(t *testing.T) {
	url := serveConn(t, func(c *Conn) {
		_ = c.Serve(context.Background(), func(_ context.Context, frame []byte) []byte {
			return append([]byte("re:"), frame...)
		})
	})

	ws := dial(t, url)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("ping")))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "re:ping", string(msg))
}

func TestConnPreservesSendOrderAndFlushesOnClose(t *testing.T) {
	url := serveConn(t, func(c *Conn) {
		for i := 0; i < 50; i++ {
			_ = c.Send([]byte(strconv.Itoa(i)))
		}
		c.Close(websocket.ClosePolicyViolation, "bye")
		assert.ErrorIs(t, c.Send([]byte("late")), ErrClosed)
	})

	ws := dial(t, url)
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for i := 0; i < 50; i++ {
		_, msg, err := ws.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(i), string(msg))
	}

	_, _, err := ws.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, "bye", closeErr.Text)
}

func TestServeReturnsWhenPeerCloses(t *testing.T) {
	result := make(chan error, 1)
	url := serveConn(t, func(c *Conn) {
		result <- c.Serve(context.Background(), nil)
	})

	ws := dial(t, url)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	require.NoError(t, ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	url := serveConn(t, func(c *Conn) {
		result <- c.Serve(ctx, nil)
	})

	ws := dial(t, url)
	cancel()

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}

// greetingSink records frames and whether the sink was already visible in
// the set when each frame was sent.
type greetingSink struct {
	fakeSink
	set        *Set
	frames     []string
	registered []bool
}

func (g *greetingSink) Send(frame []byte) error {
	var ev struct {
		SubType string `json:"sub_type"`
	}
	if err := json.Unmarshal(frame, &ev); err != nil {
		return err
	}
	g.frames = append(g.frames, ev.SubType)
	g.registered = append(g.registered, g.set.Len() > 0)
	return nil
}

func TestAttachGreetsBeforeRegistering(t *testing.T) {
	set := NewSet()
	s := &greetingSink{fakeSink: fakeSink{id: "forward:1", kind: KindForward}, set: set}

	Attach(context.Background(), set, s, 10001, logger.NopLogger())

	assert.Equal(t, []string{"connect", "enable"}, s.frames)
	assert.Equal(t, []bool{false, false}, s.registered)
	assert.Equal(t, 1, set.Len())
}
