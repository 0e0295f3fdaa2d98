package server

import (
	"strings"

	"github.com/gin-gonic/gin"

	"onebridge/internal/constants"
	apperrors "onebridge/pkg/errors"
)

const bearerPrefix = "Bearer "

// checkToken validates the credentials of an API request. The Authorization
// header wins over the access_token query parameter.
func checkToken(expected, header, query string) error {
	if expected == "" {
		return nil
	}
	if header != "" {
		if !tokenMatches(expected, header) {
			return apperrors.ErrForbidden
		}
		return nil
	}
	if query == "" {
		return apperrors.ErrUnauthorized
	}
	if query != expected {
		return apperrors.ErrForbidden
	}
	return nil
}

// tokenMatches accepts both "Bearer <token>" and the bare token.
func tokenMatches(expected, presented string) bool {
	presented = strings.TrimSpace(presented)
	if strings.HasPrefix(presented, bearerPrefix) {
		presented = strings.TrimSpace(strings.TrimPrefix(presented, bearerPrefix))
	}
	return presented == expected
}

func (s *Server) authenticate(c *gin.Context) {
	err := checkToken(
		s.opts.AccessToken,
		c.GetHeader(constants.HeaderAuthorization),
		c.Query(constants.QueryAccessToken),
	)
	if err != nil {
		s.logger.WarnwCtx(c.Request.Context(), "Rejected API request",
			"path", c.Request.URL.Path,
			"client_ip", c.ClientIP(),
			"error", err,
		)
		c.AbortWithStatus(apperrors.ToHTTPStatus(err))
		return
	}
	c.Next()
}

// socketTokenOK applies the forward socket rule: a query token replaces the
// header before comparison.
func socketTokenOK(expected, header, query string) bool {
	if expected == "" {
		return true
	}
	if query != "" {
		header = query
	}
	return header != "" && tokenMatches(expected, header)
}
