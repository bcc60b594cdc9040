// internal/queue/queue.go
package queue

import (
	"context"
	"fmt"
	"sync"
)

// Handler processes one delivered message. A nil error acknowledges it; an
// error drops it without requeue.
type Handler func(body []byte) error

// Queue is the transport between the pipeline and the notification relay.
type Queue interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// InMemoryQueue delivers synchronously to every subscriber of a topic. It backs
// NOTIFIER_DRIVER=inproc, where the relay runs in the same process.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]Handler),
	}
}

// Publish hands body to all subscribers and returns the first handler error.
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, body []byte) error {
	q.mu.Lock()
	handlers := append([]Handler(nil), q.handlers[topic]...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	var firstErr error
	for _, handler := range handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := append([]byte(nil), body...)
		if err := handler(msg); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("topic %s: %w", topic, err)
		}
	}
	return firstErr
}

func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

func (q *InMemoryQueue) Close() error { return nil }
