package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"room-sync/contract"
	"room-sync/domain/event"
	"room-sync/errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type subscriber struct {
	id      string
	topic   string
	handler contract.Handler
	queue   chan event.FanoutEvent
	done    chan struct{}
	stopped atomic.Bool
}

// Hub is the in-process NotificationChannel.
// Every subscription owns a queue and a delivery goroutine, so a slow handler
// only delays its own subscription. Publish blocks while a queue is full,
// nothing is dropped.
type Hub struct {
	mu         sync.RWMutex
	topics     map[string]map[string]*subscriber
	log        *slog.Logger
	bufferSize int
	closed     bool
}

func NewHub(log *slog.Logger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Hub{
		topics:     make(map[string]map[string]*subscriber),
		log:        log,
		bufferSize: bufferSize,
	}
}

func (h *Hub) Subscribe(_ context.Context, topic string, handler contract.Handler) (contract.Subscription, error) {
	if handler == nil {
		return contract.Subscription{}, fmt.Errorf("subscribe %s: nil handler", topic)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return contract.Subscription{}, fmt.Errorf("subscribe %s: hub closed: %w", topic, errors.ErrTransientNetwork)
	}

	sub := &subscriber{
		id:      uuid.NewString(),
		topic:   topic,
		handler: handler,
		queue:   make(chan event.FanoutEvent, h.bufferSize),
		done:    make(chan struct{}),
	}
	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[string]*subscriber)
	}
	h.topics[topic][sub.id] = sub
	go h.deliver(sub)

	h.log.Debug("Subscribed", "topic", topic, "subscription_id", sub.id)
	return contract.Subscription{ID: sub.id, Topic: topic}, nil
}

// Unsubscribe is idempotent. Once it returns the handler is not invoked again,
// although a delivery already in progress may still complete.
func (h *Hub) Unsubscribe(_ context.Context, sub contract.Subscription) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[sub.Topic]
	if !ok {
		return nil
	}
	s, ok := subs[sub.ID]
	if !ok {
		return nil
	}
	delete(subs, sub.ID)
	if len(subs) == 0 {
		delete(h.topics, sub.Topic)
	}
	h.stop(s)
	h.log.Debug("Unsubscribed", "topic", sub.Topic, "subscription_id", sub.ID)
	return nil
}

// Publish enqueues the event for every current subscriber of the topic.
// A full queue blocks until ctx is done; that subscriber misses the event
// and the others still get it. Publishing to a topic without subscribers
// is a no-op.
func (h *Hub) Publish(ctx context.Context, topic string, e event.FanoutEvent) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return fmt.Errorf("publish %s: hub closed: %w", topic, errors.ErrTransientNetwork)
	}
	subs := make([]*subscriber, 0, len(h.topics[topic]))
	for _, s := range h.topics[topic] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		select {
		case s.queue <- e:
			continue
		case <-s.done:
			continue
		default:
		}
		select {
		case s.queue <- e:
		case <-s.done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("publish %s to %s: %w", topic, s.id, ctx.Err()))
		}
	}
	return errors.Join(errs...)
}

// Subscribers returns the number of live subscriptions on a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for _, subs := range h.topics {
		for _, s := range subs {
			h.stop(s)
		}
	}
	h.topics = make(map[string]map[string]*subscriber)
	return nil
}

func (h *Hub) stop(s *subscriber) {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.done)
	}
}

func (h *Hub) deliver(s *subscriber) {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.queue:
			if s.stopped.Load() {
				return
			}
			h.safeHandle(s, e)
		}
	}
}

func (h *Hub) safeHandle(s *subscriber, e event.FanoutEvent) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Subscriber handler panicked", "topic", s.topic, "subscription_id", s.id, "panic", r)
		}
	}()
	s.handler(e)
}
