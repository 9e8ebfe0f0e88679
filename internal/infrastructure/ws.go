package infra

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pot-code/learnsync/internal/infrastructure/logging"
	"go.uber.org/zap"
)

var (
	writeWait    = 10 * time.Second
	pongWait     = 30 * time.Second
	pingInterval = pongWait * 9 / 10
)

// StreamHandler writes to conn until ctx is done or a write fails.
// ctx is cancelled once the peer goes away.
type StreamHandler func(ctx context.Context, conn *websocket.Conn) error

// StreamPreparer runs before the upgrade and may still answer with a plain HTTP error.
// It must copy whatever it needs out of c, which is recycled once the request returns.
type StreamPreparer func(c echo.Context) (StreamHandler, error)

// Websocket upgrades requests into server push streams kept alive by ping/pong
type Websocket struct {
	upgrader websocket.Upgrader
}

// NewWebsocket .
func NewWebsocket() *Websocket {
	return &Websocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			HandshakeTimeout: 3 * time.Second,
		},
	}
}

// WithHeartbeat wrap handler function with heartbeat probe.
//
// The stream outlives the request, so handler runs on a context detached from request
// deadlines that only carries the request logger.
func (ws *Websocket) WithHeartbeat(prepare StreamPreparer) echo.HandlerFunc {
	return func(c echo.Context) error {
		handler, err := prepare(c)
		if err != nil {
			return err
		}
		conn, err := ws.upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// upgrader has already replied
			return nil
		}

		logger := logging.ExtractLoggerFromContext(c.Request().Context())
		ctx, cancel := context.WithCancel(logging.SetLoggerInContext(context.Background(), logger))

		go readRoutine(conn, cancel)
		go heartbeatRoutine(ctx, conn)
		go func() {
			defer cancel()
			defer conn.Close()
			if err := handler(ctx, conn); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket stream ended", zap.Error(err))
			}
		}()
		return nil
	}
}

// readRoutine processes control frames, the peer is not expected to send data
func readRoutine(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func heartbeatRoutine(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// WriteJSON writes v as one text frame with the standard write deadline
func WriteJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteRaw writes an already encoded text frame
func WriteRaw(conn *websocket.Conn, payload []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// WriteClose sends a normal closure frame
func WriteClose(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}
