package action

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onebridge/internal/event"
	"onebridge/internal/logger"
	"onebridge/internal/protocol"
	"onebridge/internal/queue"
	"onebridge/internal/quickop"
	"onebridge/internal/runtime"
	"onebridge/internal/runtime/mock"
	apperrors "onebridge/pkg/errors"
)

type recordingQuick struct {
	mu  sync.Mutex
	evs []event.Event
	ops []quickop.Operation
}

func (q *recordingQuick) Apply(_ context.Context, ev event.Event, op quickop.Operation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.evs = append(q.evs, ev)
	q.ops = append(q.ops, op)
}

type fixture struct {
	rt      *mock.Runtime
	queue   *queue.Queue
	quick   *recordingQuick
	router  *Router
	restart chan struct{}
}

func newFixture(t *testing.T, delay time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		rt:      mock.New(10001),
		quick:   &recordingQuick{},
		restart: make(chan struct{}, 1),
	}
	f.queue = queue.New(f.rt, delay, logger.NopLogger())
	t.Cleanup(f.queue.Close)
	f.router = NewRouter(f.rt, f.queue, f.quick, func() { f.restart <- struct{}{} }, logger.NopLogger())
	return f
}

func request(action string, params map[string]any) protocol.Request {
	return protocol.Request{Action: action, Params: params}
}

func TestSendMsgRoutesToPrivate(t *testing.T) {
	f := newFixture(t, time.Millisecond)

	resp, err := f.router.Apply(context.Background(), request("send_msg", map[string]any{
		"user_id": float64(1),
		"message": "hi",
	}))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)

	calls := f.rt.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "sendPrivateMsg", calls[0].Method)
	assert.Equal(t, []any{float64(1), "hi"}, calls[0].Args)
}

func TestSendMsgResolution(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{name: "explicit type wins", params: map[string]any{"message_type": "group", "user_id": 1.0, "group_id": 2.0}, want: "sendGroupMsg"},
		{name: "group id", params: map[string]any{"group_id": 2.0}, want: "sendGroupMsg"},
		{name: "discuss id", params: map[string]any{"discuss_id": 3.0}, want: "sendDiscussMsg"},
		{name: "unknown type falls back to ids", params: map[string]any{"message_type": "channel", "user_id": 1.0}, want: "sendPrivateMsg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, time.Millisecond)
			_, err := f.router.Apply(context.Background(), request("send_msg", tt.params))
			require.NoError(t, err)
			require.Len(t, f.rt.Calls(), 1)
			assert.Equal(t, tt.want, f.rt.Calls()[0].Method)
		})
	}
}

func TestSendMsgWithoutTarget(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	_, err := f.router.Apply(context.Background(), request("send_msg", map[string]any{"message": "hi"}))
	assert.True(t, apperrors.IsNotFoundAction(err))
}

func TestUnknownActionIsNotFound(t *testing.T) {
	f := newFixture(t, time.Millisecond)

	_, err := f.router.Apply(context.Background(), request("frobnicate", nil))
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundAction(err))
	assert.Equal(t, 1404, apperrors.ToRetcode(err))
	assert.Empty(t, f.rt.Calls())
}

func TestRateLimitedReturnsAsyncAndRunsInOrder(t *testing.T) {
	delay := 30 * time.Millisecond
	f := newFixture(t, delay)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		resp, err := f.router.Apply(ctx, request("send_group_msg_rate_limited", map[string]any{
			"group_id": float64(5),
			"message":  float64(i),
		}))
		require.NoError(t, err)

		body, err := json.Marshal(resp)
		require.NoError(t, err)
		assert.JSONEq(t, `{"retcode":1,"status":"async","data":null,"error":null}`, string(body))
	}

	calls := f.rt.WaitForCalls(3, 2*time.Second)
	require.Len(t, calls, 3)
	for i, c := range calls {
		assert.Equal(t, "sendGroupMsg", c.Method)
		assert.Equal(t, []any{float64(5), float64(i + 1)}, c.Args)
	}
	assert.GreaterOrEqual(t, calls[1].At.Sub(calls[0].At), delay-5*time.Millisecond)
	assert.GreaterOrEqual(t, calls[2].At.Sub(calls[1].At), delay-5*time.Millisecond)
}

func TestAsyncDoesNotWait(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	release := make(chan struct{})
	f.rt.Handle("deleteMsg", func(context.Context, []any) (runtime.Result, error) {
		<-release
		return runtime.Result{Status: "ok"}, nil
	})
	defer close(release)

	resp, err := f.router.Apply(context.Background(), request("delete_msg_async", map[string]any{"message_id": "abc"}))
	require.NoError(t, err)
	assert.Equal(t, protocol.Async(), resp)

	calls := f.rt.WaitForCalls(1, time.Second)
	require.Len(t, calls, 1)
	assert.Equal(t, []any{"abc"}, calls[0].Args)
}

func TestCombinedSuffixes(t *testing.T) {
	for _, action := range []string{"send_like_async_rate_limited", "send_like_rate_limited_async"} {
		name, isAsync, isRateLimited := stripSuffixes(action)
		assert.Equal(t, "send_like", name)
		assert.True(t, isAsync)
		assert.True(t, isRateLimited)
	}
}

func TestBooleanCoercionAndSkippedParams(t *testing.T) {
	f := newFixture(t, time.Millisecond)

	_, err := f.router.Apply(context.Background(), request("set_group_kick", map[string]any{
		"group_id":           float64(9),
		"user_id":            float64(7),
		"reject_add_request": "1",
	}))
	require.NoError(t, err)

	_, err = f.router.Apply(context.Background(), request("set_group_leave", map[string]any{
		"group_id": float64(9),
	}))
	require.NoError(t, err)

	_, err = f.router.Apply(context.Background(), request("set_friend_add_request", map[string]any{
		"flag":    "f",
		"approve": "false",
		"block":   float64(0),
	}))
	require.NoError(t, err)

	calls := f.rt.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []any{float64(9), float64(7), true}, calls[0].Args)
	assert.Equal(t, []any{float64(9)}, calls[1].Args)
	assert.Equal(t, []any{"f", false, false}, calls[2].Args)
}

func TestEchoRoundTrip(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	echo := json.RawMessage(`{"seq":42,"tag":["a"]}`)

	for _, action := range []string{"get_status", "get_status_async", "get_status_rate_limited", "set_restart"} {
		req := request(action, nil)
		req.Echo = echo
		resp, err := f.router.Apply(context.Background(), req)
		require.NoError(t, err, action)
		assert.JSONEq(t, string(echo), string(resp.Echo), action)
	}
}

func TestTableDataIsFlattened(t *testing.T) {
	f := newFixture(t, time.Millisecond)

	resp, err := f.router.Apply(context.Background(), request("get_friend_list", nil))
	require.NoError(t, err)

	list, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)
}

func TestMapDataIsKept(t *testing.T) {
	f := newFixture(t, time.Millisecond)

	resp, err := f.router.Apply(context.Background(), request("get_login_info", nil))
	require.NoError(t, err)
	assert.IsType(t, map[string]any{}, resp.Data)
}

func TestRuntimeFailuresBecomeFailedResponses(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	f.rt.Handle("getGroupInfo", func(context.Context, []any) (runtime.Result, error) {
		return runtime.Result{}, errors.New("socket closed")
	})
	f.rt.Handle("getGroupList", func(context.Context, []any) (runtime.Result, error) {
		return runtime.Result{}, &runtime.Error{Code: 104, Message: "offline"}
	})
	f.rt.Handle("getStatus", func(context.Context, []any) (runtime.Result, error) {
		panic("boom")
	})
	f.rt.Handle("getCookies", func(context.Context, []any) (runtime.Result, error) {
		return runtime.Result{Retcode: 100, Status: "failed", Error: &runtime.ErrorPayload{Code: 100, Message: "bad domain"}}, nil
	})

	tests := []struct {
		action  string
		retcode int
	}{
		{action: "get_group_info", retcode: 102},
		{action: "get_group_list", retcode: 104},
		{action: "get_status", retcode: 102},
		{action: "get_cookies", retcode: 100},
	}
	for _, tt := range tests {
		resp, err := f.router.Apply(context.Background(), request(tt.action, nil))
		require.NoError(t, err, tt.action)
		assert.Equal(t, "failed", resp.Status, tt.action)
		assert.Equal(t, tt.retcode, resp.Retcode, tt.action)
		require.NotNil(t, resp.Error, tt.action)
	}
}

func TestRestartIsAsync(t *testing.T) {
	f := newFixture(t, time.Millisecond)

	resp, err := f.router.Apply(context.Background(), request("set_restart", nil))
	require.NoError(t, err)
	assert.Equal(t, "async", resp.Status)

	select {
	case <-f.restart:
	case <-time.After(time.Second):
		t.Fatal("restart was not triggered")
	}
	assert.Empty(t, f.rt.Calls())
}

func TestQuickOperation(t *testing.T) {
	f := newFixture(t, time.Millisecond)

	req := request(".handle_quick_operation", map[string]any{
		"context": map[string]any{
			"post_type":    "message",
			"message_type": "group",
			"message_id":   "m1",
			"group_id":     float64(9),
			"user_id":      float64(7),
		},
		"operation": map[string]any{"reply": "pong", "ban": "true"},
	})
	req.Echo = json.RawMessage(`"q1"`)

	resp, err := f.router.Apply(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "async", resp.Status)
	assert.Equal(t, json.RawMessage(`"q1"`), resp.Echo)

	require.Len(t, f.quick.evs, 1)
	msg, ok := f.quick.evs[0].(event.Message)
	require.True(t, ok)
	assert.Equal(t, int64(9), msg.GroupID)
	assert.Equal(t, "pong", f.quick.ops[0].Reply)
	assert.True(t, bool(f.quick.ops[0].Ban))
}

func TestQuickOperationMalformed(t *testing.T) {
	f := newFixture(t, time.Millisecond)

	tests := []map[string]any{
		{"operation": map[string]any{}},
		{"context": map[string]any{"post_type": "message"}},
		{"context": map[string]any{"post_type": "bogus"}, "operation": map[string]any{}},
		{"context": map[string]any{"post_type": "message"}, "operation": []any{1}},
	}
	for _, params := range tests {
		_, err := f.router.Apply(context.Background(), request(".handle_quick_operation_async", params))
		assert.True(t, apperrors.IsMalformedRequest(err), "%v", params)
	}
	assert.Empty(t, f.quick.evs)
}

func TestMethodName(t *testing.T) {
	assert.Equal(t, "sendGroupMsg", MethodName("send_group_msg"))
	assert.Equal(t, "getCsrfToken", MethodName("get_csrf_token"))
	assert.Equal(t, "cleanCache", MethodName("clean_cache"))
	assert.Equal(t, "frobnicate", MethodName("frobnicate"))
}

func TestSchemaBools(t *testing.T) {
	m, ok := Lookup("setGroupAddRequest")
	require.True(t, ok)
	assert.Equal(t, []string{"flag", "approve", "reason", "block"}, m.Params)
	assert.True(t, m.Coerced("approve"))
	assert.False(t, m.Coerced("reason"))

	_, ok = Lookup("setRestart")
	assert.False(t, ok)
}
