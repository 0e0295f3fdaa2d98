// Package protocol holds the request/response envelope exchanged with
// controllers over every transport.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"onebridge/internal/constants"
	apperrors "onebridge/pkg/errors"
)

// QuickOperationAction is the reserved action prefix a controller uses to
// apply a quick operation to an event it received earlier.
const QuickOperationAction = ".handle_quick_operation"

type Request struct {
	Action string          `json:"action"`
	Params map[string]any  `json:"params"`
	Echo   json.RawMessage `json:"echo,omitempty"`
}

// IsQuickOperation reports whether the request carries a quick operation
// instead of a runtime action.
func (r Request) IsQuickOperation() bool {
	return strings.HasPrefix(r.Action, QuickOperationAction)
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Response struct {
	Retcode int             `json:"retcode"`
	Status  string          `json:"status"`
	Data    any             `json:"data"`
	Error   *ErrorBody      `json:"error"`
	Echo    json.RawMessage `json:"echo,omitempty"`
}

func OK(data any) Response {
	return Response{Retcode: constants.RetcodeOK, Status: constants.StatusOK, Data: data}
}

// Async is the reply for fire-and-forget, rate-limited and restart calls.
func Async() Response {
	return Response{Retcode: constants.RetcodeAsync, Status: constants.StatusAsync}
}

func Failed(retcode int, message string) Response {
	return Response{
		Retcode: retcode,
		Status:  constants.StatusFailed,
		Error:   &ErrorBody{Code: retcode, Message: message},
	}
}

// FromError builds the failure envelope for a request-level error
// (not-found or malformed).
func FromError(err error) Response {
	return Failed(apperrors.ToRetcode(err), apperrors.PublicMessage(err))
}

// WithEcho attaches echo when the request carried one.
func (r Response) WithEcho(echo json.RawMessage) Response {
	if len(echo) > 0 && !bytes.Equal(echo, []byte("null")) {
		r.Echo = echo
	}
	return r
}

// ParseRequest decodes one socket frame. A frame without an action is
// malformed; a missing params object is treated as empty.
func ParseRequest(frame []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return Request{}, apperrors.ErrMalformedRequest.WithCause(err)
	}
	if req.Action == "" {
		return req, apperrors.ErrMalformedRequest.WithCause(fmt.Errorf("missing action"))
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}
	return req, nil
}

// PeekEcho extracts echo from a frame that failed to parse as a request, so
// the failure response can still be correlated.
func PeekEcho(frame []byte) json.RawMessage {
	var probe struct {
		Echo json.RawMessage `json:"echo"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		return nil
	}
	return probe.Echo
}
