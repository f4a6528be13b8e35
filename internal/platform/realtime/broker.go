// Package realtime provides the named-channel publish/subscribe brokers that
// carry collaboration events between peers.
package realtime

import (
	"context"
	"errors"
)

var (
	ErrClosed       = errors.New("realtime broker closed")
	ErrUnsubscribed = errors.New("realtime subscription closed")
	ErrEmptyChannel = errors.New("realtime channel name is empty")
)

// Handler receives every payload published on a subscribed channel,
// including the subscriber's own. Calls for one subscription are sequential
// and in delivery order.
type Handler func(payload []byte)

// Subscription is the handle returned by Subscribe. It belongs to a single
// subscriber and must not be shared.
type Subscription interface {
	Channel() string
	Publish(ctx context.Context, payload []byte) error
	Unsubscribe(ctx context.Context) error
}

type Broker interface {
	Subscribe(ctx context.Context, channel string, h Handler) (Subscription, error)
	Close() error
}
