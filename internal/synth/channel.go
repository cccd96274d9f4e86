package synth

import (
	"context"
	"errors"
	"sync"
)

// ErrChannelClosed is returned by Send after Close.
var ErrChannelClosed = errors.New("synthesis channel is closed")

// Channel is an asynchronous connection to a synthesis worker. Events
// arrive in the order the worker produced them. The events channel is
// closed when the connection ends.
type Channel interface {
	Send(ctx context.Context, req Request) error
	Events() <-chan Event
	Close() error
}

// LocalChannel runs a Worker on its own goroutine in this process.
type LocalChannel struct {
	worker   *Worker
	requests chan Request
	events   chan Event
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

// NewLocalChannel starts w behind a channel.
func NewLocalChannel(w *Worker) *LocalChannel {
	ctx, cancel := context.WithCancel(context.Background())
	c := &LocalChannel{
		worker:   w,
		requests: make(chan Request, 16),
		events:   make(chan Event, 64),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.loop()
	return c
}

// Send implements Channel.
func (c *LocalChannel) Send(ctx context.Context, req Request) error {
	select {
	case <-c.ctx.Done():
		return ErrChannelClosed
	default:
	}
	select {
	case c.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrChannelClosed
	}
}

// Events implements Channel.
func (c *LocalChannel) Events() <-chan Event { return c.events }

// Close stops the worker goroutine and closes the events channel.
func (c *LocalChannel) Close() error {
	c.once.Do(func() {
		c.cancel()
		<-c.done
	})
	return nil
}

func (c *LocalChannel) loop() {
	defer close(c.done)
	defer close(c.events)
	for {
		select {
		case <-c.ctx.Done():
			return
		case req := <-c.requests:
			c.worker.Handle(c.ctx, req, c.emit)
		}
	}
}

func (c *LocalChannel) emit(e Event) {
	select {
	case c.events <- e:
	case <-c.ctx.Done():
	}
}
