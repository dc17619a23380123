// Package gateway owns the websocket connections. It tells the presence
// registry about connects and disconnects, hands inbound chat frames to the
// chat service, and pushes notifications back out.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/suPer8Hu/pairchat/internal/chat"
	"github.com/suPer8Hu/pairchat/internal/presence"
	"go.uber.org/zap"
)

var (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = int64(16 * 1024)
	inboundTimeout = 10 * time.Second
)

var (
	ErrUnknownHandle  = errors.New("gateway: unknown connection handle")
	ErrConnClosed     = errors.New("gateway: connection closed")
	ErrSendBufferFull = errors.New("gateway: send buffer full")
)

// InboundHandler receives chat frames read from a connection.
type InboundHandler interface {
	HandleInboundFrame(ctx context.Context, senderID, recipientID, content, idempotencyKey string) (*chat.Outcome, error)
}

type Options struct {
	SendBuffer int
}

type Gateway struct {
	registry   *presence.Registry
	log        *zap.Logger
	upgrader   websocket.Upgrader
	sendBuffer int

	conns sync.Map // presence.Handle -> *conn
}

func New(registry *presence.Registry, log *zap.Logger, opts Options) *Gateway {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		registry:   registry,
		log:        log,
		sendBuffer: opts.SendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

type conn struct {
	handle presence.Handle
	userID string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *conn) close() {
	c.once.Do(func() { close(c.done) })
}

// OnConnect registers a new connection for the user and returns its handle.
func (g *Gateway) OnConnect(userID string, ws *websocket.Conn) (presence.Handle, error) {
	c, err := g.connect(userID, ws)
	if err != nil {
		return "", err
	}
	return c.handle, nil
}

// connect returns the registered conn itself; it may already be closed by a
// concurrent Shutdown, in which case its done channel is closed.
func (g *Gateway) connect(userID string, ws *websocket.Conn) (*conn, error) {
	h := presence.Handle(uuid.NewString())
	c := &conn{
		handle: h,
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, g.sendBuffer),
		done:   make(chan struct{}),
	}
	g.conns.Store(h, c)
	if err := g.registry.Connect(userID, h); err != nil {
		g.conns.Delete(h)
		return nil, err
	}
	g.log.Info("connected", zap.String("user_id", userID), zap.String("handle", string(h)))
	return c, nil
}

// OnDisconnect forgets the connection. Calling it twice is harmless.
func (g *Gateway) OnDisconnect(h presence.Handle) {
	v, ok := g.conns.LoadAndDelete(h)
	if !ok {
		return
	}
	c := v.(*conn)
	c.close()
	if err := g.registry.Disconnect(c.userID, h); err != nil {
		g.log.Warn("presence disconnect failed", zap.String("handle", string(h)), zap.Error(err))
	}
	g.log.Info("disconnected", zap.String("user_id", c.userID), zap.String("handle", string(h)))
}

// Push queues a chat notification on one connection.
func (g *Gateway) Push(ctx context.Context, h presence.Handle, n chat.Notification) error {
	v, ok := g.conns.Load(h)
	if !ok {
		return ErrUnknownHandle
	}
	b, err := encodeFrame(frameMessage, n)
	if err != nil {
		return err
	}
	return v.(*conn).enqueue(ctx, b)
}

func (c *conn) enqueue(ctx context.Context, b []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrSendBufferFull
		}
		return ctx.Err()
	}
}

// OnStatusChange tells every other connected user about a presence transition.
func (g *Gateway) OnStatusChange(ctx context.Context, ev presence.StatusChange) error {
	b, err := encodeFrame(framePresence, ev)
	if err != nil {
		return err
	}
	g.conns.Range(func(_, v any) bool {
		c := v.(*conn)
		if c.userID == ev.UserID {
			return true
		}
		// presence frames are advisory; a full buffer drops them
		select {
		case c.send <- b:
		case <-c.done:
		default:
		}
		return true
	})
	return nil
}

// ServeWS upgrades the request and runs the connection until it closes.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request, userID string, inbound InboundHandler) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	c, err := g.connect(userID, ws)
	if err != nil {
		g.log.Warn("connect rejected", zap.String("user_id", userID), zap.Error(err))
		_ = ws.Close()
		return
	}

	go g.writePump(c)
	g.readPump(c, inbound)
}

func (g *Gateway) readPump(c *conn, inbound InboundHandler) {
	defer func() {
		g.OnDisconnect(c.handle)
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Info("read failed", zap.String("handle", string(c.handle)), zap.Error(err))
			}
			return
		}

		var in inboundFrame
		if err := json.Unmarshal(raw, &in); err != nil {
			g.reply(c, frameError, errorPayload{Code: "bad_frame", Message: "invalid json"})
			continue
		}
		switch in.Type {
		case frameMessage:
			g.handleMessage(c, inbound, in)
		case framePing:
			g.reply(c, framePong, nil)
		default:
			g.reply(c, frameError, errorPayload{Code: "bad_frame", Message: "unknown frame type", Ref: in.Ref})
		}
	}
}

func (g *Gateway) handleMessage(c *conn, inbound InboundHandler, in inboundFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), inboundTimeout)
	defer cancel()

	out, err := inbound.HandleInboundFrame(ctx, c.userID, in.RecipientID, in.Content, in.IdempotencyKey)
	if err != nil {
		code := errorCode(err)
		if code == "persistence_failure" {
			g.log.Error("send failed", zap.String("user_id", c.userID), zap.Error(err))
		}
		g.reply(c, frameError, errorPayload{Code: code, Message: err.Error(), Ref: in.Ref})
		return
	}
	g.reply(c, frameAck, ackPayload{
		Ref:             in.Ref,
		MessageID:       out.Message.ID,
		RoomID:          out.Message.RoomID,
		Timestamp:       out.Message.CreatedAt,
		Status:          string(out.Status),
		HandlesNotified: out.HandlesNotified,
		Duplicate:       out.Duplicate,
	})
}

func (g *Gateway) reply(c *conn, typ string, data any) {
	b, err := encodeFrame(typ, data)
	if err != nil {
		g.log.Error("encode frame", zap.String("type", typ), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := c.enqueue(ctx, b); err != nil {
		g.log.Warn("reply dropped", zap.String("handle", string(c.handle)), zap.Error(err))
	}
}

func (g *Gateway) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				g.log.Info("write failed", zap.String("handle", string(c.handle)), zap.Error(err))
				g.OnDisconnect(c.handle)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				g.OnDisconnect(c.handle)
				return
			}
		}
	}
}

// Connections returns the number of open connections.
func (g *Gateway) Connections() int {
	n := 0
	g.conns.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Shutdown closes every connection.
func (g *Gateway) Shutdown() {
	g.conns.Range(func(k, _ any) bool {
		g.OnDisconnect(k.(presence.Handle))
		return true
	})
}
