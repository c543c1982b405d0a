package pubsub

import (
	"sync"
)

type Sender[T any] interface {
	// Send blocks until the message is accepted, returning false if the receiving end is closed.
	Send(T) bool
}

type Receiver[T any] interface {
	Receive() <-chan T
}

type Closer interface {
	// Close is idempotent.
	Close()
	// Closed returns a channel that is closed once Close has been called.
	Closed() <-chan struct{}
}

type SenderCloser[T any] interface {
	Sender[T]
	Closer
}

type ReceiverCloser[T any] interface {
	Receiver[T]
	Closer
}

type Channel[T any] interface {
	Sender[T]
	Receiver[T]
	Closer
}

// channel is a `chan` that can be closed from either end without panicking a blocked sender.
type channel[T any] struct {
	mu      sync.RWMutex
	ch      chan T
	done    chan struct{}
	closed  bool
	sending sync.WaitGroup
}

// NewChannel creates a new channel with the given buffer size.
func NewChannel[T any](bufSize int) Channel[T] {
	return &channel[T]{
		ch:   make(chan T, bufSize),
		done: make(chan struct{}),
	}
}

func (c *channel[T]) Receive() <-chan T {
	return c.ch
}

func (c *channel[T]) Send(msg T) bool {
	// Either Close() sees this sender in c.sending, or this sender sees c.closed
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	c.sending.Add(1)
	defer c.sending.Done()
	c.mu.RUnlock()

	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.ch <- msg:
		return true
	case <-c.done:
		return false
	}
}

func (c *channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	// Release blocked senders, and only close the underlying channel once none are left
	close(c.done)
	c.sending.Wait()
	close(c.ch)
}

func (c *channel[T]) Closed() <-chan struct{} {
	return c.done
}
