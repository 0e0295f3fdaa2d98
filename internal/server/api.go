package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"onebridge/internal/protocol"
	apperrors "onebridge/pkg/errors"
	"onebridge/pkg/logging"
)

const maxBodyBytes = 4 << 20

func (s *Server) requireHTTP(c *gin.Context) {
	if !s.opts.Server.UseHTTP {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	c.Next()
}

// handleAction serves /<action> over GET and POST. The action name is the
// last path segment, so /v11/send_msg and /send_msg are the same call.
func (s *Server) handleAction(c *gin.Context) {
	var (
		params map[string]any
		err    error
	)
	switch c.Request.Method {
	case http.MethodGet:
		params = queryParams(c)
	case http.MethodPost:
		params, err = bodyParams(c.Request)
	default:
		err = apperrors.ErrMethodNotAllowed
	}
	if err != nil {
		c.AbortWithStatus(apperrors.ToHTTPStatus(err))
		return
	}

	req := protocol.Request{Action: actionName(c.Request.URL.Path), Params: params}
	ctx := logging.WithConnection(c.Request.Context(), "http")
	res, err := s.router.Apply(ctx, req)
	if err != nil {
		if !apperrors.IsNotFoundAction(err) {
			s.logger.WarnwCtx(ctx, "API request failed", "action", req.Action, "error", err)
		}
		c.AbortWithStatus(apperrors.ToHTTPStatus(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func actionName(path string) string {
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// queryParams keeps repeated keys as lists and single ones as strings.
func queryParams(c *gin.Context) map[string]any {
	query := c.Request.URL.Query()
	params := make(map[string]any, len(query))
	for key, values := range query {
		if len(values) == 1 {
			params[key] = values[0]
			continue
		}
		params[key] = values
	}
	return params
}

func bodyParams(r *http.Request) (map[string]any, error) {
	mediaType := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		parsed, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, apperrors.ErrUnsupportedMediaType.WithCause(err)
		}
		mediaType = parsed
	}

	switch {
	case mediaType == "" || strings.Contains(mediaType, "json"):
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return nil, apperrors.ErrMalformedRequest.WithCause(err)
		}
		params := map[string]any{}
		if len(strings.TrimSpace(string(body))) == 0 {
			return params, nil
		}
		if err := json.Unmarshal(body, &params); err != nil {
			return nil, apperrors.ErrMalformedRequest.WithCause(err)
		}
		if params == nil {
			params = map[string]any{}
		}
		return params, nil
	case mediaType == "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return nil, apperrors.ErrMalformedRequest.WithCause(err)
		}
		params := make(map[string]any, len(r.PostForm))
		for key, values := range r.PostForm {
			if len(values) == 1 {
				params[key] = values[0]
				continue
			}
			params[key] = values
		}
		return params, nil
	default:
		return nil, apperrors.ErrUnsupportedMediaType.WithDetail("content_type", mediaType)
	}
}
