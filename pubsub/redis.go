package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"room-sync/contract"
	"room-sync/domain/event"
	"room-sync/errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type redisSubscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

// RedisChannel is the NotificationChannel shared by several server instances.
// Redis pub/sub keeps per-channel order but does not retain events for a
// subscriber that is not connected, so delivery is at most once.
type RedisChannel struct {
	client        *redis.Client
	log           *slog.Logger
	mu            sync.Mutex
	subscriptions map[string]redisSubscription
}

func NewRedisChannel(ctx context.Context, cfg RedisConfig, log *slog.Logger) (*RedisChannel, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %v: %w", cfg.Address, err, errors.ErrTransientNetwork)
	}
	return &RedisChannel{
		client:        client,
		log:           log,
		subscriptions: make(map[string]redisSubscription),
	}, nil
}

func (r *RedisChannel) Publish(ctx context.Context, topic string, e event.FanoutEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %v: %w", topic, err, errors.ErrTransientNetwork)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so no event
// published afterwards is missed.
func (r *RedisChannel) Subscribe(ctx context.Context, topic string, handler contract.Handler) (contract.Subscription, error) {
	if handler == nil {
		return contract.Subscription{}, fmt.Errorf("subscribe %s: nil handler", topic)
	}
	ps := r.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return contract.Subscription{}, fmt.Errorf("subscribe %s: %v: %w", topic, err, errors.ErrTransientNetwork)
	}

	sub := contract.Subscription{ID: uuid.NewString(), Topic: topic}
	runCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.subscriptions[sub.ID] = redisSubscription{pubsub: ps, cancel: cancel}
	r.mu.Unlock()

	go r.processMessages(runCtx, sub, ps, handler)
	return sub, nil
}

func (r *RedisChannel) Unsubscribe(_ context.Context, sub contract.Subscription) error {
	r.mu.Lock()
	s, ok := r.subscriptions[sub.ID]
	delete(r.subscriptions, sub.ID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	s.cancel()
	return s.pubsub.Close()
}

func (r *RedisChannel) Close() error {
	r.mu.Lock()
	for id, s := range r.subscriptions {
		s.cancel()
		_ = s.pubsub.Close()
		delete(r.subscriptions, id)
	}
	r.mu.Unlock()
	return r.client.Close()
}

func (r *RedisChannel) processMessages(ctx context.Context, sub contract.Subscription, ps *redis.PubSub, handler contract.Handler) {
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var e event.FanoutEvent
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				r.log.Warn("Dropping undecodable event", "topic", sub.Topic, "error", err)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			handler(e)
		}
	}
}
