package synth

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "ttsgen.synth"

// RequestSubject is where requests for prefix are published.
func RequestSubject(prefix string) string { return prefix + ".request" }

// EventSubject is where events for prefix are published.
func EventSubject(prefix string) string { return prefix + ".events" }

// NATSChannel reaches a worker through a NATS server. A single publisher on
// one connection keeps events in order.
type NATSChannel struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	prefix  string
	events  chan Event
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
	owned   bool
	logger  *log.Logger
	closing sync.Once
}

// ConnectNATS dials url and subscribes to the worker's events.
func ConnectNATS(url, prefix string, logger *log.Logger) (*NATSChannel, error) {
	conn, err := nats.Connect(url, nats.Name("ttsgen-client"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	c, err := NewNATSChannel(conn, prefix, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.owned = true
	return c, nil
}

// NewNATSChannel uses an existing connection. The caller keeps ownership of conn.
func NewNATSChannel(conn *nats.Conn, prefix string, logger *log.Logger) (*NATSChannel, error) {
	if prefix == "" {
		prefix = DefaultSubject
	}
	if logger == nil {
		logger = log.WithPrefix("nats")
	}
	c := &NATSChannel{
		conn:   conn,
		prefix: prefix,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
		logger: logger,
	}
	sub, err := conn.Subscribe(EventSubject(prefix), c.handleEvent)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", EventSubject(prefix), err)
	}
	if err := conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}
	c.sub = sub
	return c, nil
}

// Send implements Channel.
func (c *NATSChannel) Send(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	data, err := EncodeRequest(req)
	if err != nil {
		return err
	}
	return c.conn.Publish(RequestSubject(c.prefix), data)
}

// Events implements Channel.
func (c *NATSChannel) Events() <-chan Event { return c.events }

// Close unsubscribes and closes the events channel.
func (c *NATSChannel) Close() error {
	var err error
	c.closing.Do(func() {
		close(c.done)
		err = c.sub.Unsubscribe()
		c.mu.Lock()
		c.closed = true
		close(c.events)
		c.mu.Unlock()
		if c.owned {
			c.conn.Close()
		}
	})
	return err
}

func (c *NATSChannel) handleEvent(msg *nats.Msg) {
	ev, err := DecodeEvent(msg.Data)
	if err != nil {
		c.logger.Warn("dropping malformed event", "err", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// NATSResponder serves a Worker on a NATS subject prefix.
type NATSResponder struct {
	worker   *Worker
	conn     *nats.Conn
	sub      *nats.Subscription
	prefix   string
	requests chan Request
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *log.Logger
}

// ServeNATS subscribes to the request subject and runs w on each request in
// arrival order.
func ServeNATS(conn *nats.Conn, prefix string, w *Worker, logger *log.Logger) (*NATSResponder, error) {
	if prefix == "" {
		prefix = DefaultSubject
	}
	if logger == nil {
		logger = log.WithPrefix("responder")
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &NATSResponder{
		worker:   w,
		conn:     conn,
		prefix:   prefix,
		requests: make(chan Request, 16),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}
	sub, err := conn.Subscribe(RequestSubject(prefix), r.handleRequest)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", RequestSubject(prefix), err)
	}
	if err := conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		cancel()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}
	r.sub = sub
	r.wg.Add(1)
	go r.loop()
	logger.Info("serving synthesis", "subject", RequestSubject(prefix))
	return r, nil
}

// Close stops serving.
func (r *NATSResponder) Close() error {
	err := r.sub.Unsubscribe()
	r.cancel()
	r.wg.Wait()
	return err
}

func (r *NATSResponder) handleRequest(msg *nats.Msg) {
	req, err := DecodeRequest(msg.Data)
	if err != nil {
		r.logger.Warn("dropping malformed request", "err", err)
		r.publish(Error{Message: err.Error()})
		return
	}
	select {
	case r.requests <- req:
	case <-r.ctx.Done():
	}
}

func (r *NATSResponder) loop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case req := <-r.requests:
			r.worker.Handle(r.ctx, req, r.publish)
		}
	}
}

func (r *NATSResponder) publish(e Event) {
	data, err := EncodeEvent(e)
	if err != nil {
		r.logger.Error("encode event", "err", err)
		return
	}
	if err := r.conn.Publish(EventSubject(r.prefix), data); err != nil {
		r.logger.Error("publish event", "err", err)
	}
}
