package action

import (
	"context"
	"encoding/json"

	"onebridge/internal/protocol"
	apperrors "onebridge/pkg/errors"
)

// HandleFrame answers one socket frame. Request-level failures become
// failed responses carrying whatever echo could be recovered from the frame.
func (r *Router) HandleFrame(ctx context.Context, frame []byte) []byte {
	req, err := protocol.ParseRequest(frame)
	var resp protocol.Response
	if err == nil {
		resp, err = r.Apply(ctx, req)
	}
	if err != nil {
		if !apperrors.IsNotFoundAction(err) {
			r.logger.WarnwCtx(ctx, "Rejected socket request", "error", err)
		}
		resp = protocol.FromError(err).WithEcho(protocol.PeekEcho(frame))
	}

	out, err := json.Marshal(resp)
	if err != nil {
		r.logger.ErrorwCtx(ctx, "Failed to encode response", "error", err)
		out, _ = json.Marshal(protocol.FromError(apperrors.ErrInternal).WithEcho(req.Echo))
	}
	return out
}
