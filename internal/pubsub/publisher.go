package pubsub

import (
	"errors"
	"sync"

	"github.com/alanbriolat/universal-saver/generic"
	"github.com/alanbriolat/universal-saver/internal/sync_"
)

const (
	DefaultSubscriberBufSize = 16
)

var (
	ErrPublisherClosed = errors.New("publisher closed")
)

// A Publisher delivers every message to every subscriber, in the order the messages were sent. A message only goes to
// the subscribers present when it was sent.
type Publisher[T any] interface {
	// Send queues a message without blocking, returning false if the publisher is closed.
	Send(T) bool
	AddSubscriber(SenderCloser[T]) error
	Subscribe() (ReceiverCloser[T], error)
	// SubscribeFiltered only receives messages accepted by f.
	SubscribeFiltered(f func(T) bool) (ReceiverCloser[T], error)
	// Close delivers anything still queued, then closes all subscribers.
	Close()
}

type queued[T any] struct {
	msg        T
	recipients []SenderCloser[T]
}

type publisher[T any] struct {
	mu          sync.Mutex
	queue       []queued[T]
	wake        chan struct{}
	closing     bool
	running     sync.WaitGroup
	subscribers *sync_.Mutexed[generic.Set[SenderCloser[T]]]
}

func NewPublisher[T any]() Publisher[T] {
	p := &publisher[T]{
		wake:        make(chan struct{}, 1),
		subscribers: sync_.NewMutexed(generic.NewSet[SenderCloser[T]]()),
	}
	p.running.Add(1)
	go func() {
		defer p.running.Done()
		for {
			q, ok := p.next()
			if !ok {
				return
			}
			p.deliver(q)
		}
	}()
	return p
}

// next blocks until there is a queued message, returning false once the queue is empty and the publisher is closing.
func (p *publisher[T]) next() (q queued[T], ok bool) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			q = p.queue[0]
			p.queue[0] = queued[T]{}
			p.queue = p.queue[1:]
			p.mu.Unlock()
			return q, true
		}
		closing := p.closing
		p.mu.Unlock()
		if closing {
			return q, false
		}
		<-p.wake
	}
}

func (p *publisher[T]) deliver(q queued[T]) {
	for _, s := range q.recipients {
		if ok := s.Send(q.msg); !ok {
			p.unsubscribe(s)
		}
	}
}

func (p *publisher[T]) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *publisher[T]) Send(msg T) bool {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return false
	}
	// Recipients are fixed now, so a later subscriber never sees this message
	var recipients []SenderCloser[T]
	_ = p.subscribers.Locked(func(subscribers generic.Set[SenderCloser[T]]) error {
		for s := range subscribers {
			recipients = append(recipients, s)
		}
		return nil
	})
	p.queue = append(p.queue, queued[T]{msg: msg, recipients: recipients})
	p.mu.Unlock()
	p.signal()
	return true
}

func (p *publisher[T]) Subscribe() (ReceiverCloser[T], error) {
	return p.SubscribeFiltered(nil)
}

func (p *publisher[T]) SubscribeFiltered(f func(T) bool) (ReceiverCloser[T], error) {
	ch := NewChannel[T](DefaultSubscriberBufSize)
	var s SenderCloser[T] = ch
	if f != nil {
		s = NewFilteredSender[T](ch, f)
	}
	if err := p.AddSubscriber(s); err != nil {
		return nil, err
	}
	return ch, nil
}

func (p *publisher[T]) AddSubscriber(s SenderCloser[T]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closing {
		return ErrPublisherClosed
	}
	return p.subscribers.Locked(func(subscribers generic.Set[SenderCloser[T]]) error {
		subscribers.Add(s)
		return nil
	})
}

func (p *publisher[T]) unsubscribe(s SenderCloser[T]) {
	_ = p.subscribers.Locked(func(subscribers generic.Set[SenderCloser[T]]) error {
		subscribers.Remove(s)
		return nil
	})
}

func (p *publisher[T]) Close() {
	p.mu.Lock()
	alreadyClosing := p.closing
	p.closing = true
	p.mu.Unlock()
	p.signal()
	// Wait for the queue to drain; a second Close() just waits too
	p.running.Wait()
	if alreadyClosing {
		return
	}
	var subscriberSlice []SenderCloser[T]
	_ = p.subscribers.Locked(func(subscribers generic.Set[SenderCloser[T]]) error {
		for s := range subscribers {
			subscriberSlice = append(subscriberSlice, s)
			delete(subscribers, s)
		}
		return nil
	})
	for _, s := range subscriberSlice {
		s.Close()
	}
}
