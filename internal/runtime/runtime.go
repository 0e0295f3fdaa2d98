// Package runtime describes the bot runtime the bridge drives. The runtime
// itself lives outside this module; the bridge only needs its identity and a
// way to invoke its exposed methods by identifier.
package runtime

import (
	"context"
	"fmt"

	"onebridge/internal/event"
)

// Runtime is the capability the bridge consumes.
type Runtime interface {
	// SelfID is the account the runtime is logged in as; it is sent as the
	// X-Self-ID header and stamped on generated meta events.
	SelfID() int64

	// Invoke calls the runtime method named by method (e.g. "sendGroupMsg")
	// with positional args. A non-nil error means the call could not be
	// made at all; a failed call the runtime understood is reported through
	// Result.Status.
	Invoke(ctx context.Context, method string, args []any) (Result, error)
}

// Result is the runtime's own reply envelope.
type Result struct {
	Retcode int
	Status  string
	Data    any
	Error   *ErrorPayload
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error is returned by runtimes that want a specific failure code to reach
// the controller.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("runtime error %d: %s", e.Code, e.Message)
}

// Valuer is implemented by identifier-keyed results that the router
// flattens to a list of values.
type Valuer interface {
	Values() []any
}

// Table is an identifier-keyed collection that keeps insertion order, used
// for friend, group and member lists.
type Table struct {
	keys   []string
	values map[string]any
}

func NewTable() *Table {
	return &Table{values: make(map[string]any)}
}

// Set inserts or replaces the value for key. Replacing keeps the original
// position.
func (t *Table) Set(key string, value any) {
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

func (t *Table) Get(key string) (any, bool) {
	v, ok := t.values[key]
	return v, ok
}

func (t *Table) Len() int { return len(t.keys) }

func (t *Table) Values() []any {
	out := make([]any, 0, len(t.keys))
	for _, k := range t.keys {
		out = append(out, t.values[k])
	}
	return out
}

// EventSource is implemented by runtimes that push events to the bridge
// over a channel rather than calling the dispatcher themselves.
type EventSource interface {
	Events() <-chan event.Event
}

// Method identifiers the bridge calls on its own initiative (quick
// operations). Controller-initiated calls go through the action schema.
const (
	MethodSendPrivateMsg      = "sendPrivateMsg"
	MethodSendGroupMsg        = "sendGroupMsg"
	MethodDeleteMsg           = "deleteMsg"
	MethodSetGroupKick        = "setGroupKick"
	MethodSetGroupBan         = "setGroupBan"
	MethodSetFriendAddRequest = "setFriendAddRequest"
	MethodSetGroupAddRequest  = "setGroupAddRequest"
)
