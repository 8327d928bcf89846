package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsWriteTimeout = 10 * time.Second

// WebSocket carries one frame per text message over a gorilla connection.
type WebSocket struct {
	opts  options
	inbox *mailbox
	conn  *websocket.Conn

	wmu  sync.Mutex
	once sync.Once
}

// NewWebSocket wraps an established connection and starts its reader.
func NewWebSocket(conn *websocket.Conn, opts ...Option) *WebSocket {
	ws := &WebSocket{
		opts:  buildOptions(opts),
		inbox: newMailbox(),
		conn:  conn,
	}
	conn.SetReadLimit(int64(ws.opts.maxFrameBytes))
	go ws.readLoop()
	return ws
}

// DialWebSocket connects to a websocket endpoint, e.g. the host's /renderer route.
func DialWebSocket(ctx context.Context, url string, opts ...Option) (*WebSocket, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWebSocket(conn, opts...), nil
}

// Upgrader accepts renderer connections on the host's HTTP server.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // local peers only; the server binds to loopback by default
	},
}

// AcceptWebSocket upgrades an HTTP request into a channel.
func AcceptWebSocket(w http.ResponseWriter, r *http.Request, opts ...Option) (*WebSocket, error) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return NewWebSocket(conn, opts...), nil
}

func (ws *WebSocket) readLoop() {
	for {
		kind, data, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.inbox.shut(ErrClosed)
			} else {
				ws.opts.logger.Debug("WebSocket reader stopped", zap.Error(err))
				ws.inbox.shut(err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if env, ok := ws.opts.decode(data); ok {
			ws.inbox.deliver(env)
		}
	}
}

// Send writes one frame as a text message.
func (ws *WebSocket) Send(env protocol.Envelope) error {
	if ws.inbox.closed() {
		return ErrClosed
	}
	data, err := ws.opts.encode(env)
	if err != nil {
		return err
	}

	ws.wmu.Lock()
	defer ws.wmu.Unlock()
	ws.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	ws.opts.sent(env.Message.Tag())
	return nil
}

func (ws *WebSocket) Recv(ctx context.Context) (protocol.Envelope, error) {
	return ws.inbox.recv(ctx)
}

func (ws *WebSocket) Done() <-chan struct{} {
	return ws.inbox.done
}

// Close sends a close message and drops the connection.
func (ws *WebSocket) Close() error {
	var err error
	ws.once.Do(func() {
		ws.inbox.shut(ErrClosed)

		ws.wmu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		werr := ws.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		ws.wmu.Unlock()

		err = ws.conn.Close()
		if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			ws.opts.logger.Debug("WebSocket close message failed", zap.Error(werr))
		}
	})
	return err
}
