package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFoundAction       = NewError("NOT_FOUND_ACTION", "unsupported action", http.StatusNotFound).WithRetcode(1404)
	ErrMalformedRequest     = NewError("MALFORMED_REQUEST", "malformed request", http.StatusBadRequest).WithRetcode(1400)
	ErrUnauthorized         = NewError("UNAUTHORIZED", "missing access token", http.StatusUnauthorized).WithRetcode(1401)
	ErrForbidden            = NewError("FORBIDDEN", "wrong access token", http.StatusForbidden).WithRetcode(1403)
	ErrMethodNotAllowed     = NewError("METHOD_NOT_ALLOWED", "method not allowed", http.StatusMethodNotAllowed).WithRetcode(1405)
	ErrUnsupportedMediaType = NewError("UNSUPPORTED_MEDIA_TYPE", "unsupported content type", http.StatusNotAcceptable).WithRetcode(1406)
	ErrTransport            = NewError("TRANSPORT_FAILURE", "transport failure", http.StatusBadGateway)
	ErrInternal             = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError).WithRetcode(1500)
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code      string
	Message   string
	Status    int
	Retcode   int
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
			msg = detailMsg
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Code so that sentinels still compare equal after WithCause
// or WithDetail produced a copy.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	if e.Cause != nil {
		var retryableErr RetryableError
		if errors.As(e.Cause, &retryableErr) {
			return retryableErr.IsRetryable()
		}
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return !fatalErr.IsFatal()
		}
	}
	return e.Code == ErrTransport.Code
}

func (e *Error) IsFatal() bool {
	if e.retryable != nil {
		return !*e.retryable
	}

	if e.Cause != nil {
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return fatalErr.IsFatal()
		}
	}

	return e.Code == ErrMalformedRequest.Code || e.Code == ErrNotFoundAction.Code
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithRetcode(retcode int) *Error {
	err := *e
	err.Retcode = retcode
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func (e *Error) AsRetryable() *Error {
	err := *e
	retryable := true
	err.retryable = &retryable
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	retryable := false
	err.retryable = &retryable
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func IsNotFoundAction(err error) bool {
	return errors.Is(err, ErrNotFoundAction)
}

func IsMalformedRequest(err error) bool {
	return errors.Is(err, ErrMalformedRequest)
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// ToRetcode maps err to the retcode carried in socket failure responses.
func ToRetcode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Retcode != 0 {
		return appErr.Retcode
	}
	return ErrMalformedRequest.Retcode
}

// PublicMessage is the short message sent to protocol clients; causes stay
// in the logs.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrInternal.Message
}
