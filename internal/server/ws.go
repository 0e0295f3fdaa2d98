package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"onebridge/internal/constants"
	"onebridge/internal/sink"
	"onebridge/pkg/logging"
)

// upgrade takes over websocket handshakes on any path when the forward
// socket is enabled; other requests continue down the HTTP chain.
func (s *Server) upgrade(c *gin.Context) {
	if !s.opts.Server.UseWS || !websocket.IsWebSocketUpgrade(c.Request) {
		c.Next()
		return
	}
	c.Abort()

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WarnwCtx(c.Request.Context(), "Websocket upgrade failed",
			"client_ip", c.ClientIP(),
			"error", err,
		)
		return
	}

	if !socketTokenOK(s.opts.AccessToken,
		c.GetHeader(constants.HeaderAuthorization),
		c.Query(constants.QueryAccessToken),
	) {
		s.logger.Warnw("Rejected websocket client", "client_ip", c.ClientIP())
		msg := websocket.FormatCloseMessage(websocket.CloseProtocolError, "wrong access token")
		_ = ws.WriteControl(websocket.CloseMessage, msg, deadline())
		_ = ws.Close()
		return
	}

	s.conns.Add(1)
	go s.serveSocket(ws, c.Request, c.ClientIP())
}

func (s *Server) serveSocket(ws *websocket.Conn, r *http.Request, clientIP string) {
	defer s.conns.Done()

	label := "forward:" + clientIP
	ctx := logging.WithConnection(s.baseContext(), label)

	conn := sink.NewConn(ws, sink.KindForward, label, s.logger)
	s.logger.InfowCtx(ctx, "Forward websocket connected", "path", r.URL.Path)
	sink.Attach(ctx, s.sinks, conn, s.opts.SelfID, s.logger)
	defer s.sinks.Remove(conn.ID())

	if err := conn.Serve(ctx, s.router.HandleFrame); err != nil {
		s.logger.WarnwCtx(ctx, "Forward websocket closed with error", "error", err)
		return
	}
	s.logger.InfowCtx(ctx, "Forward websocket closed")
}
