package realtime

import (
	"context"
	"strings"
	"sync"
)

const defaultMemoryQueue = 256

// MemoryBroker fans messages out in-process. Each subscriber has its own
// delivery goroutine; a subscriber whose queue is full misses the message.
type MemoryBroker struct {
	mu       sync.RWMutex
	channels map[string]map[*memorySub]struct{}
	queue    int
	closed   bool
}

func NewMemoryBroker(queue int) *MemoryBroker {
	if queue <= 0 {
		queue = defaultMemoryQueue
	}
	return &MemoryBroker{channels: make(map[string]map[*memorySub]struct{}), queue: queue}
}

type memorySub struct {
	broker  *MemoryBroker
	channel string
	handler Handler
	inbox   chan []byte
	done    chan struct{}
	once    sync.Once
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string, h Handler) (Subscription, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, ErrEmptyChannel
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &memorySub{
		broker:  b,
		channel: channel,
		handler: h,
		inbox:   make(chan []byte, b.queue),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	subs := b.channels[channel]
	if subs == nil {
		subs = make(map[*memorySub]struct{})
		b.channels[channel] = subs
	}
	subs[sub] = struct{}{}
	go sub.run()
	return sub, nil
}

func (b *MemoryBroker) publish(channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for sub := range b.channels[channel] {
		msg := make([]byte, len(payload))
		copy(msg, payload)
		select {
		case sub.inbox <- msg:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) remove(sub *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs := b.channels[sub.channel]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.channels, sub.channel)
		}
	}
}

// Subscribers reports how many live subscriptions a channel has.
func (b *MemoryBroker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*memorySub
	for _, set := range b.channels {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	b.channels = make(map[string]map[*memorySub]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return nil
}

func (s *memorySub) run() {
	for {
		select {
		case msg := <-s.inbox:
			if s.handler != nil {
				s.handler(msg)
			}
		case <-s.done:
			return
		}
	}
}

func (s *memorySub) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *memorySub) Channel() string { return s.channel }

func (s *memorySub) Publish(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.done:
		return ErrUnsubscribed
	default:
	}
	return s.broker.publish(s.channel, payload)
}

func (s *memorySub) Unsubscribe(ctx context.Context) error {
	s.broker.remove(s)
	s.stop()
	return nil
}
