package sink

import (
	"context"
	"encoding/json"

	"onebridge/internal/event"
	"onebridge/internal/logger"
)

// Greet pushes the connect and enable lifecycle events every new socket
// receives before any other traffic.
func Greet(ctx context.Context, s Sink, selfID int64, log logger.Logger) {
	for _, sub := range []string{event.LifecycleConnect, event.LifecycleEnable} {
		frame, err := json.Marshal(event.Lifecycle(selfID, sub))
		if err != nil {
			log.ErrorwCtx(ctx, "Failed to encode lifecycle event", "error", err)
			return
		}
		if err := s.Send(frame); err != nil {
			log.WarnwCtx(ctx, "Failed to send lifecycle event",
				"sub_type", sub,
				"error", err,
			)
		}
	}
}

// Attach greets s and only then registers it in set, so no dispatched event
// can be queued ahead of the lifecycle events.
func Attach(ctx context.Context, set *Set, s Sink, selfID int64, log logger.Logger) {
	Greet(ctx, s, selfID, log)
	set.Add(s)
}
