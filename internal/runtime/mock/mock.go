// Package mock provides an in-process runtime that records every call and
// answers with canned results. It backs the CLI's dry-run mode, where a
// controller can be developed against the bridge without a live account,
// and the bridge's own tests.
package mock

import (
	"context"
	"strconv"
	"sync"
	"time"

	"onebridge/internal/constants"
	"onebridge/internal/event"
	"onebridge/internal/runtime"
)

// Call is one recorded invocation.
type Call struct {
	Method string
	Args   []any
	At     time.Time
}

// Handler produces the result for one method.
type Handler func(ctx context.Context, args []any) (runtime.Result, error)

type Runtime struct {
	selfID int64

	mu       sync.Mutex
	calls    []Call
	handlers map[string]Handler
	notify   chan struct{}

	events chan event.Event
}

func New(selfID int64) *Runtime {
	r := &Runtime{
		selfID:   selfID,
		handlers: make(map[string]Handler),
		notify:   make(chan struct{}, 1),
		events:   make(chan event.Event, 64),
	}
	r.Handle("getLoginInfo", func(context.Context, []any) (runtime.Result, error) {
		return ok(map[string]any{"user_id": selfID, "nickname": "mock"}), nil
	})
	r.Handle("getFriendList", func(context.Context, []any) (runtime.Result, error) {
		friends := runtime.NewTable()
		friends.Set(strconv.FormatInt(selfID, 10), map[string]any{"user_id": selfID, "nickname": "mock"})
		return ok(friends), nil
	})
	return r
}

func ok(data any) runtime.Result {
	return runtime.Result{Retcode: constants.RetcodeOK, Status: constants.StatusOK, Data: data}
}

func (r *Runtime) SelfID() int64 { return r.selfID }

// Handle installs the handler for method, replacing any previous one.
func (r *Runtime) Handle(method string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = h
}

func (r *Runtime) Invoke(ctx context.Context, method string, args []any) (runtime.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Method: method, Args: append([]any(nil), args...), At: time.Now()})
	h := r.handlers[method]
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}

	if h == nil {
		return ok(nil), nil
	}
	return h(ctx, args)
}

// Calls returns a snapshot of the recorded invocations in call order.
func (r *Runtime) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// WaitForCalls blocks until at least n calls were recorded or timeout
// elapses, and returns the snapshot either way.
func (r *Runtime) WaitForCalls(n int, timeout time.Duration) []Call {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if calls := r.Calls(); len(calls) >= n {
			return calls
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return r.Calls()
		}
	}
}

// Emit queues an event for the bridge. It drops the event when nobody is
// draining the channel.
func (r *Runtime) Emit(ev event.Event) bool {
	select {
	case r.events <- ev:
		return true
	default:
		return false
	}
}

func (r *Runtime) Events() <-chan event.Event {
	return r.events
}
