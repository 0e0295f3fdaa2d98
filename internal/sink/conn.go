package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"onebridge/internal/constants"
	"onebridge/internal/logger"
	"onebridge/pkg/metrics"
)

var (
	ErrClosed     = errors.New("sink closed")
	ErrBufferFull = errors.New("sink buffer full")
)

// Handler answers one inbound frame. A nil reply sends nothing.
type Handler func(ctx context.Context, frame []byte) []byte

// Conn wraps a websocket as a Sink. Outbound frames go through a buffered
// channel drained by a single writer goroutine, so Send never blocks and
// frames leave in the order they were sent.
type Conn struct {
	id     string
	kind   string
	label  string
	ws     *websocket.Conn
	logger logger.Logger

	send    chan []byte
	closing chan struct{}
	done    chan struct{}

	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

// NewConn starts the writer for ws. label names the peer in logs, e.g. the
// reverse URL or the remote address.
func NewConn(ws *websocket.Conn, kind, label string, log logger.Logger) *Conn {
	c := &Conn{
		id:      kind + ":" + uuid.NewString(),
		kind:    kind,
		label:   label,
		ws:      ws,
		logger:  log,
		send:    make(chan []byte, constants.SocketSendBuffer),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *Conn) ID() string    { return c.id }
func (c *Conn) Kind() string  { return c.kind }
func (c *Conn) Label() string { return c.label }

// Done is closed once the connection is fully shut down.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Send(frame []byte) error {
	select {
	case <-c.closing:
		return ErrClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		metrics.SinkDroppedTotal.Inc()
		return ErrBufferFull
	}
}

// Close flushes frames already queued, sends a close frame with code and
// reason, and closes the socket. Later calls are no-ops.
func (c *Conn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.closing)
	})
}

// Serve reads frames until the peer goes away or ctx ends. Each frame is
// handled in its own goroutine so a slow runtime call does not hold up the
// frames behind it.
func (c *Conn) Serve(ctx context.Context, handle Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
			c.Close(websocket.CloseGoingAway, "")
		case <-c.done:
		}
	}()

	var err error
	for {
		_, frame, rerr := c.ws.ReadMessage()
		if rerr != nil {
			if !c.isClosing() && !websocket.IsCloseError(rerr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = rerr
			}
			break
		}
		if handle == nil {
			continue
		}
		go func(frame []byte) {
			if reply := handle(ctx, frame); reply != nil {
				if serr := c.Send(reply); serr != nil {
					c.logger.WarnwCtx(ctx, "Dropped reply",
						"connection", c.id,
						"error", serr,
					)
				}
			}
		}(frame)
	}

	c.Close(websocket.CloseNormalClosure, "")
	<-c.done
	return err
}

func (c *Conn) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

func (c *Conn) writePump() {
	defer close(c.done)
	defer c.ws.Close()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				c.logger.Warnw("Socket write failed",
					"connection", c.id,
					"peer", c.label,
					"error", err,
				)
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.closing:
			c.flush()
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(constants.SocketWriteTimeout))
			return
		}
	}
}

func (c *Conn) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(frame []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(constants.SocketWriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}
