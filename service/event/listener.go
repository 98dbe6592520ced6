package event

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/viant/movegate/service/messaging"
)

// idleWait paces polling of queues that return immediately when empty.
const idleWait = 50 * time.Millisecond

// Handler processes one event; an error hands the event back to the queue
// for a retry, and to its dead letters once retries run out.
type Handler[T any] func(*Event[T]) error

type Listener[T any] struct {
	publisher *Publisher[T]
	handler   Handler[T]
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
}

func NewListener[T any](publisher *Publisher[T], handler Handler[T]) *Listener[T] {
	return &Listener[T]{
		publisher: publisher,
		handler:   handler,
		done:      make(chan struct{}),
	}
}

// Stop ends the consume loop and waits for it to exit.
func (l *Listener[T]) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

func (l *Listener[T]) Start(ctx context.Context) {
	l.once.Do(func() {
		ctx, l.cancel = context.WithCancel(ctx)
		go l.run(ctx)
	})
}

func (l *Listener[T]) run(ctx context.Context) {
	defer close(l.done)
	for {
		msg, err := l.publisher.Consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("movegate: error consuming event: %v", err)
		}
		if err != nil || msg == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idleWait):
			}
			continue
		}
		l.settle(msg)
	}
}

func (l *Listener[T]) settle(msg messaging.Message[Event[T]]) {
	if err := l.handler(msg.T()); err != nil {
		log.Printf("movegate: event handler failed: %v", err)
		if err = msg.Nack(err); err != nil {
			log.Printf("movegate: failed to nack event: %v", err)
		}
		return
	}
	if err := msg.Ack(); err != nil {
		log.Printf("movegate: failed to ack event: %v", err)
	}
}
