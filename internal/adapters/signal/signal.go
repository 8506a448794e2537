// Package signal is the WebSocket transport gateway: JSON control frames
// with a type envelope, binary frames carrying PCM audio.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/realtuner/stage/internal/app"
	"github.com/realtuner/stage/internal/core"
	"github.com/realtuner/stage/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Coord     *app.Coordinator
	Relay     *app.AudioRelay
	Hub       *Hub
	ReadLimit int64
}

func NewController(coord *app.Coordinator, relay *app.AudioRelay, hub *Hub, readLimit int64) *Controller {
	return &Controller{Coord: coord, Relay: relay, Hub: hub, ReadLimit: readLimit}
}

type outFrame struct {
	binary bool
	data   core.Frame
}

// WsConn wraps one client connection with a bounded send queue.
// id is set by the identify handler and read only from the read pump.
type WsConn struct {
	conn *websocket.Conn
	send chan outFrame

	id domain.ParticipantID

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) trySend(f outFrame) error {
	if len(f.data) == 0 {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) TrySend(f core.Frame) error {
	return c.trySend(outFrame{data: f})
}

func (c *WsConn) TrySendPCM(f core.Frame) error {
	return c.trySend(outFrame{binary: true, data: f})
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSession upgrades the connection and starts its pumps.
func (ctl *Controller) HandleSession(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("token", token).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsConn{
		conn: ws,
		send: make(chan outFrame, 64),
	}
	ctl.Hub.Add(conn)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ctl.writePump(ctx, conn)
		cancel()
	}()
	go func() {
		ctl.readPump(ctx, conn)
		cancel()
	}()
}
