package logging

import (
	"context"
)

type ctxKey string

const (
	SelfIDKey      ctxKey = "self_id"
	ActionKey      ctxKey = "action"
	ConnectionKey  ctxKey = "connection"
	TraceIDKey     ctxKey = "trace_id"
	ServiceNameKey ctxKey = "service_name"
)

func WithSelfID(ctx context.Context, selfID int64) context.Context {
	return context.WithValue(ctx, SelfIDKey, selfID)
}

func WithAction(ctx context.Context, action string) context.Context {
	return context.WithValue(ctx, ActionKey, action)
}

// WithConnection tags ctx with the sink a request arrived on, e.g.
// "reverse:ws://host/path" or "forward:<uuid>".
func WithConnection(ctx context.Context, conn string) context.Context {
	return context.WithValue(ctx, ConnectionKey, conn)
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func GetSelfID(ctx context.Context) int64 {
	if selfID, ok := ctx.Value(SelfIDKey).(int64); ok {
		return selfID
	}
	return 0
}

func GetAction(ctx context.Context) string {
	if action, ok := ctx.Value(ActionKey).(string); ok {
		return action
	}
	return ""
}

func GetConnection(ctx context.Context) string {
	if conn, ok := ctx.Value(ConnectionKey).(string); ok {
		return conn
	}
	return ""
}

func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func GetServiceName(ctx context.Context) string {
	if serviceName, ok := ctx.Value(ServiceNameKey).(string); ok {
		return serviceName
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 10)

	if selfID := GetSelfID(ctx); selfID != 0 {
		fields = append(fields, "self_id", selfID)
	}

	if action := GetAction(ctx); action != "" {
		fields = append(fields, "action", action)
	}

	if conn := GetConnection(ctx); conn != "" {
		fields = append(fields, "connection", conn)
	}

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, "trace_id", traceID)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, "service_name", serviceName)
	}

	return fields
}
