// Package action turns controller requests into runtime calls.
package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"onebridge/internal/constants"
	"onebridge/internal/event"
	"onebridge/internal/logger"
	"onebridge/internal/protocol"
	"onebridge/internal/queue"
	"onebridge/internal/quickop"
	"onebridge/internal/runtime"
	apperrors "onebridge/pkg/errors"
	"onebridge/pkg/logging"
	"onebridge/pkg/metrics"
	"onebridge/pkg/tracing"
)

const (
	suffixAsync       = "_async"
	suffixRateLimited = "_rate_limited"

	actionSendMsg = "send_msg"
	actionRestart = "set_restart"
)

const (
	modeSync        = "sync"
	modeAsync       = "async"
	modeRateLimited = "rate_limited"
	modeQuick       = "quick_operation"
	modeRestart     = "restart"
)

// Enqueuer accepts rate-limited calls.
type Enqueuer interface {
	Enqueue(task queue.Task)
}

// QuickApplier runs a quick operation against an event.
type QuickApplier interface {
	Apply(ctx context.Context, ev event.Event, op quickop.Operation)
}

type Router struct {
	rt      runtime.Runtime
	queue   Enqueuer
	quick   QuickApplier
	restart func()
	logger  logger.Logger
}

// NewRouter builds a router. restart is called in its own goroutine for
// set_restart; nil disables the action's effect but it still answers async.
func NewRouter(rt runtime.Runtime, q Enqueuer, quick QuickApplier, restart func(), log logger.Logger) *Router {
	return &Router{
		rt:      rt,
		queue:   q,
		quick:   quick,
		restart: restart,
		logger:  log,
	}
}

// Apply executes one request. The returned error is non-nil only for
// not-found and malformed requests; every runtime failure is folded into a
// failed Response.
func (r *Router) Apply(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	if req.Params == nil {
		req.Params = map[string]any{}
	}

	if req.IsQuickOperation() {
		if err := r.applyQuickOperation(ctx, req.Params); err != nil {
			return protocol.Response{}, err
		}
		metrics.ActionsTotal.WithLabelValues(modeQuick, constants.StatusAsync).Inc()
		return protocol.Async().WithEcho(req.Echo), nil
	}

	name, isAsync, isRateLimited := stripSuffixes(req.Action)
	if name == actionSendMsg {
		name = resolveSendMsg(req.Params)
	}

	ctx = logging.WithAction(ctx, name)

	if name == actionRestart {
		if r.restart != nil {
			go r.restart()
		}
		r.logger.InfowCtx(ctx, "Restart requested")
		metrics.ActionsTotal.WithLabelValues(modeRestart, constants.StatusAsync).Inc()
		return protocol.Async().WithEcho(req.Echo), nil
	}

	m, ok := Lookup(MethodName(name))
	if !ok {
		return protocol.Response{}, apperrors.ErrNotFoundAction.WithDetail("action", req.Action)
	}
	args := buildArgs(m, req.Params)

	var resp protocol.Response
	switch {
	case isRateLimited:
		r.queue.Enqueue(queue.Task{Method: m.Name, Args: args})
		metrics.ActionsTotal.WithLabelValues(modeRateLimited, constants.StatusAsync).Inc()
		resp = protocol.Async()
	case isAsync:
		go r.invokeDetached(context.WithoutCancel(ctx), m.Name, args)
		metrics.ActionsTotal.WithLabelValues(modeAsync, constants.StatusAsync).Inc()
		resp = protocol.Async()
	default:
		resp = r.invoke(ctx, m.Name, args)
		metrics.ActionsTotal.WithLabelValues(modeSync, resp.Status).Inc()
	}

	return resp.WithEcho(req.Echo), nil
}

// stripSuffixes removes the _async and _rate_limited markers wherever they
// appear, as older controllers put them in either order.
func stripSuffixes(action string) (name string, isAsync, isRateLimited bool) {
	name = action
	if strings.Contains(name, suffixAsync) {
		isAsync = true
		name = strings.Replace(name, suffixAsync, "", 1)
	}
	if strings.Contains(name, suffixRateLimited) {
		isRateLimited = true
		name = strings.Replace(name, suffixRateLimited, "", 1)
	}
	return name, isAsync, isRateLimited
}

func resolveSendMsg(params map[string]any) string {
	switch params["message_type"] {
	case event.MessageTypePrivate, event.MessageTypeGroup, event.MessageTypeDiscuss:
		return fmt.Sprintf("send_%s_msg", params["message_type"])
	}

	switch {
	case protocol.ToBool(params["user_id"]):
		return "send_private_msg"
	case protocol.ToBool(params["group_id"]):
		return "send_group_msg"
	case protocol.ToBool(params["discuss_id"]):
		return "send_discuss_msg"
	}
	return actionSendMsg
}

// buildArgs lists the present params in schema order. Absent params are
// skipped, not padded.
func buildArgs(m Method, params map[string]any) []any {
	args := make([]any, 0, len(m.Params))
	for _, name := range m.Params {
		v, ok := params[name]
		if !ok {
			continue
		}
		if m.Coerced(name) {
			v = protocol.ToBool(v)
		}
		args = append(args, v)
	}
	return args
}

func (r *Router) invoke(ctx context.Context, method string, args []any) protocol.Response {
	ctx, span := tracing.StartSpan(ctx, "runtime."+method)
	defer span.End()
	span.SetAttributes(attribute.String("onebot.method", method))

	start := time.Now()
	var res runtime.Result
	err := apperrors.Guard(func() error {
		var err error
		res, err = r.rt.Invoke(ctx, method, args)
		return err
	})
	metrics.ObserveActionDuration(method, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.ErrorwCtx(ctx, "Runtime call failed",
			"method", method,
			"error", err,
		)
		return failure(err)
	}
	return fromResult(res)
}

func (r *Router) invokeDetached(ctx context.Context, method string, args []any) {
	resp := r.invoke(ctx, method, args)
	if resp.Status == constants.StatusFailed {
		r.logger.WarnwCtx(ctx, "Async runtime call failed",
			"method", method,
			"retcode", resp.Retcode,
		)
	}
}

func failure(err error) protocol.Response {
	var rtErr *runtime.Error
	if errors.As(err, &rtErr) {
		return protocol.Failed(rtErr.Code, rtErr.Message)
	}
	return protocol.Failed(constants.RetcodeCallFailed, err.Error())
}

func fromResult(res runtime.Result) protocol.Response {
	resp := protocol.Response{
		Retcode: res.Retcode,
		Status:  res.Status,
		Data:    flatten(res.Data),
	}
	if res.Error != nil {
		resp.Error = &protocol.ErrorBody{Code: res.Error.Code, Message: res.Error.Message}
	}
	if resp.Status == "" {
		resp.Status = constants.StatusOK
		if resp.Error != nil {
			resp.Status = constants.StatusFailed
		}
	}
	return resp
}

// flatten turns identifier-keyed collections into the list of their values.
func flatten(data any) any {
	if v, ok := data.(runtime.Valuer); ok {
		return v.Values()
	}
	return data
}

func (r *Router) applyQuickOperation(ctx context.Context, params map[string]any) error {
	rawCtx, ok := params["context"]
	if !ok {
		return apperrors.ErrMalformedRequest.WithCause(errors.New("quick operation without context"))
	}
	rawOp, ok := params["operation"]
	if !ok {
		return apperrors.ErrMalformedRequest.WithCause(errors.New("quick operation without operation"))
	}

	evJSON, err := json.Marshal(rawCtx)
	if err != nil {
		return apperrors.ErrMalformedRequest.WithCause(err)
	}
	ev, err := event.Decode(evJSON)
	if err != nil {
		return apperrors.ErrMalformedRequest.WithCause(err)
	}

	opJSON, err := json.Marshal(rawOp)
	if err != nil {
		return apperrors.ErrMalformedRequest.WithCause(err)
	}
	op, err := quickop.ParseOperation(opJSON)
	if err != nil {
		return apperrors.ErrMalformedRequest.WithCause(err)
	}

	r.quick.Apply(ctx, ev, op)
	return nil
}
