package synth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// WSChannel talks to a remote worker over a WebSocket. Requests and events
// are JSON text frames.
type WSChannel struct {
	conn      *websocket.Conn
	events    chan Event
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    *log.Logger
}

// DialWS connects to a worker at url.
func DialWS(ctx context.Context, url string, logger *log.Logger) (*WSChannel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if logger == nil {
		logger = log.WithPrefix("ws")
	}
	cctx, cancel := context.WithCancel(context.Background())
	c := &WSChannel{
		conn:    conn,
		events:  make(chan Event, 64),
		writeCh: make(chan []byte, 16),
		ctx:     cctx,
		cancel:  cancel,
		logger:  logger,
	}
	go c.readLoop()
	go c.writeLoop()
	return c, nil
}

// Send implements Channel.
func (c *WSChannel) Send(ctx context.Context, req Request) error {
	data, err := EncodeRequest(req)
	if err != nil {
		return err
	}
	select {
	case <-c.ctx.Done():
		return ErrChannelClosed
	default:
	}
	select {
	case c.writeCh <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrChannelClosed
	}
}

// Events implements Channel.
func (c *WSChannel) Events() <-chan Event { return c.events }

// Close shuts the connection. The events channel is closed once the read
// loop exits.
func (c *WSChannel) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close()
	})
	return nil
}

func (c *WSChannel) readLoop() {
	defer close(c.events)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("connection lost", "err", err)
			}
			_ = c.Close()
			return
		}
		ev, err := DecodeEvent(msg)
		if err != nil {
			c.logger.Warn("dropping malformed event", "err", err)
			continue
		}
		select {
		case c.events <- ev:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *WSChannel) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.writeCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("write failed", "err", err)
				_ = c.Close()
				return
			}
		}
	}
}

// WSBridge exposes a Worker to WebSocket clients. Each connection is served
// sequentially, one request at a time.
type WSBridge struct {
	worker   *Worker
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewWSBridge serves w.
func NewWSBridge(w *Worker, logger *log.Logger) *WSBridge {
	if logger == nil {
		logger = log.WithPrefix("bridge")
	}
	return &WSBridge{
		worker: w,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the request and handles messages until the peer hangs up.
func (b *WSBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	b.logger.Debug("client connected", "remote", r.RemoteAddr)

	emit := func(e Event) {
		data, err := EncodeEvent(e)
		if err != nil {
			b.logger.Error("encode event", "err", err)
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			cancel()
		}
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			b.logger.Debug("client disconnected", "remote", r.RemoteAddr)
			return
		}
		req, err := DecodeRequest(msg)
		if err != nil {
			emit(Error{Message: err.Error()})
			continue
		}
		b.worker.Handle(ctx, req, emit)
		if ctx.Err() != nil {
			return
		}
	}
}
