package realtime

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/faeln1/go-mockup-api/pkg/logger"
)

const redisChannelPrefix = "mockup:room:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// RedisBroker maps room channels onto Redis pub/sub channels.
type RedisBroker struct {
	client *redis.Client
	log    logger.Logger

	mu     sync.Mutex
	closed bool
	subs   map[*redisSub]struct{}
}

func NewRedisBroker(ctx context.Context, cfg RedisConfig, log logger.Logger) (*RedisBroker, error) {
	if log == nil {
		log = logger.Noop
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", cfg.Addr)
	}
	return &RedisBroker{client: client, log: log, subs: make(map[*redisSub]struct{})}, nil
}

// Client exposes the underlying connection so presence can share it.
func (b *RedisBroker) Client() *redis.Client { return b.client }

func (b *RedisBroker) Subscribe(ctx context.Context, channel string, h Handler) (Subscription, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, ErrEmptyChannel
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.mu.Unlock()

	name := redisChannelPrefix + channel
	ps := b.client.Subscribe(ctx, name)
	// Receive blocks until Redis confirms the subscription.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrapf(err, "subscribe %s", name)
	}

	sub := &redisSub{broker: b, channel: channel, name: name, ps: ps, done: make(chan struct{})}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer close(sub.done)
		for msg := range ps.Channel() {
			if h != nil {
				h([]byte(msg.Payload))
			}
		}
	}()
	b.log.Debugf("subscribed channel=%s", name)
	return sub, nil
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*redisSub, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.ps.Close()
	}
	return b.client.Close()
}

type redisSub struct {
	broker  *RedisBroker
	channel string
	name    string
	ps      *redis.PubSub
	done    chan struct{}
	once    sync.Once
	closed  atomic.Bool
	err     error
}

func (s *redisSub) Channel() string { return s.channel }

func (s *redisSub) Publish(ctx context.Context, payload []byte) error {
	if s.closed.Load() {
		return ErrUnsubscribed
	}
	select {
	case <-s.done:
		return ErrUnsubscribed
	default:
	}
	if err := s.broker.client.Publish(ctx, s.name, payload).Err(); err != nil {
		return errors.Wrapf(err, "publish %s", s.name)
	}
	return nil
}

// Unsubscribe returns once the delivery goroutine has stopped, so the handler
// is not called afterwards.
func (s *redisSub) Unsubscribe(ctx context.Context) error {
	s.once.Do(func() {
		s.closed.Store(true)
		if err := s.ps.Unsubscribe(ctx, s.name); err != nil {
			s.err = errors.Wrapf(err, "unsubscribe %s", s.name)
		}
		if err := s.ps.Close(); err != nil && s.err == nil {
			s.err = errors.Wrapf(err, "close pubsub %s", s.name)
		}
		s.broker.mu.Lock()
		delete(s.broker.subs, s)
		s.broker.mu.Unlock()
		select {
		case <-s.done:
		case <-ctx.Done():
		}
	})
	return s.err
}
