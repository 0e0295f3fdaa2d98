// Package quickop applies the side effects a controller asks for in reply to
// an event: answer the message, recall it, kick or mute the sender, or
// settle a friend/group request.
package quickop

import (
	"context"
	"encoding/json"
	"fmt"

	"onebridge/internal/constants"
	"onebridge/internal/event"
	"onebridge/internal/logger"
	"onebridge/internal/protocol"
	"onebridge/internal/runtime"
	apperrors "onebridge/pkg/errors"
	"onebridge/pkg/metrics"
)

// Operation is the instruction set a controller returns for an event.
// Unknown fields are ignored.
type Operation struct {
	Reply            any                   `json:"reply"`
	AutoEscape       protocol.Bool         `json:"auto_escape"`
	Delete           protocol.Bool         `json:"delete"`
	Kick             protocol.Bool         `json:"kick"`
	RejectAddRequest protocol.Bool         `json:"reject_add_request"`
	Ban              protocol.Bool         `json:"ban"`
	BanDuration      protocol.Int          `json:"ban_duration"`
	Approve          protocol.OptionalBool `json:"approve"`
	Reason           string                `json:"reason"`
	Block            protocol.Bool         `json:"block"`
}

func ParseOperation(raw []byte) (Operation, error) {
	var op Operation
	if err := json.Unmarshal(raw, &op); err != nil {
		return Operation{}, fmt.Errorf("parse quick operation: %w", err)
	}
	return op, nil
}

func (o Operation) hasReply() bool {
	switch r := o.Reply.(type) {
	case nil:
		return false
	case string:
		return r != ""
	default:
		return true
	}
}

type call struct {
	method string
	args   []any
}

type Executor struct {
	rt     runtime.Runtime
	logger logger.Logger
}

func NewExecutor(rt runtime.Runtime, log logger.Logger) *Executor {
	return &Executor{rt: rt, logger: log}
}

// Apply issues the side effects for ev in the background and returns at
// once. Failures are logged.
func (e *Executor) Apply(ctx context.Context, ev event.Event, op Operation) {
	calls := Plan(ev, op)
	if len(calls) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		for _, c := range calls {
			e.invoke(ctx, c)
		}
	}()
}

func (e *Executor) invoke(ctx context.Context, c call) {
	metrics.QuickOperationsTotal.WithLabelValues(c.method).Inc()

	err := apperrors.Guard(func() error {
		res, err := e.rt.Invoke(ctx, c.method, c.args)
		if err != nil {
			return err
		}
		if res.Error != nil {
			return fmt.Errorf("retcode %d: %s", res.Retcode, res.Error.Message)
		}
		return nil
	})
	if err != nil {
		e.logger.ErrorwCtx(ctx, "Quick operation failed",
			"method", c.method,
			"error", err,
		)
	}
}

// Plan lists the runtime calls op implies for ev, in execution order.
func Plan(ev event.Event, op Operation) []call {
	switch e := ev.(type) {
	case event.Message:
		return planMessage(e, op)
	case event.Request:
		return planRequest(e, op)
	default:
		return nil
	}
}

func planMessage(m event.Message, op Operation) []call {
	var calls []call

	if op.hasReply() {
		switch m.MessageType {
		case event.MessageTypePrivate:
			calls = append(calls, call{runtime.MethodSendPrivateMsg, []any{m.UserID, op.Reply, bool(op.AutoEscape)}})
		case event.MessageTypeGroup:
			calls = append(calls, call{runtime.MethodSendGroupMsg, []any{m.GroupID, op.Reply, bool(op.AutoEscape)}})
		}
	}

	if m.MessageType != event.MessageTypeGroup {
		return calls
	}

	if op.Delete {
		calls = append(calls, call{runtime.MethodDeleteMsg, []any{m.MessageID}})
	}
	if op.Kick && m.Anonymous == nil {
		calls = append(calls, call{runtime.MethodSetGroupKick, []any{m.GroupID, m.UserID, bool(op.RejectAddRequest)}})
	}
	if op.Ban {
		duration := int64(op.BanDuration)
		if duration <= 0 {
			duration = constants.DefaultBanDurationSeconds
		}
		calls = append(calls, call{runtime.MethodSetGroupBan, []any{m.GroupID, m.UserID, duration}})
	}
	return calls
}

func planRequest(r event.Request, op Operation) []call {
	// A null approve still settles the request, as a rejection.
	if !op.Approve.Set {
		return nil
	}

	method := runtime.MethodSetGroupAddRequest
	if r.RequestType == event.RequestTypeFriend {
		method = runtime.MethodSetFriendAddRequest
	}
	return []call{{method, []any{r.Flag, op.Approve.Value, op.Reason, bool(op.Block)}}}
}
