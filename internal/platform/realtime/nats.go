package realtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/faeln1/go-mockup-api/pkg/logger"
)

const natsSubjectPrefix = "mockup.room."

type NATSConfig struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// NATSBroker maps room channels onto core NATS subjects (no persistence).
type NATSBroker struct {
	nc  *nats.Conn
	log logger.Logger
}

func NewNATSBroker(cfg NATSConfig, log logger.Logger) (*NATSBroker, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if log == nil {
		log = logger.Noop
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("nats reconnected url=%s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "connect nats")
	}
	return &NATSBroker{nc: nc, log: log}, nil
}

// subjectFor turns a room name into a single NATS subject token. Bytes NATS
// treats specially, and '_' itself, are written as _xx hex escapes so distinct
// rooms never share a subject.
func subjectFor(channel string) string {
	const hex = "0123456789abcdef"
	var b strings.Builder
	b.Grow(len(natsSubjectPrefix) + len(channel))
	b.WriteString(natsSubjectPrefix)
	for i := 0; i < len(channel); i++ {
		c := channel[i]
		switch {
		case c == '_' || c == '.' || c == '*' || c == '>' || c <= ' ' || c == 0x7f:
			b.WriteByte('_')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func (b *NATSBroker) Subscribe(ctx context.Context, channel string, h Handler) (Subscription, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, ErrEmptyChannel
	}
	if b.nc.IsClosed() {
		return nil, ErrClosed
	}
	subject := subjectFor(channel)
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		if h != nil {
			h(m.Data)
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe %s", subject)
	}
	// Flush round-trips to the server so the interest is registered before
	// the caller publishes its join event.
	if err := b.nc.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, errors.Wrapf(err, "flush subscribe %s", subject)
	}
	b.log.Debugf("subscribed subject=%s", subject)
	return &natsSub{broker: b, channel: channel, subject: subject, sub: sub}, nil
}

func (b *NATSBroker) Close() error {
	if b.nc.IsClosed() {
		return nil
	}
	return b.nc.Drain()
}

type natsSub struct {
	broker  *NATSBroker
	channel string
	subject string
	sub     *nats.Subscription

	mu     sync.Mutex
	closed bool
}

func (s *natsSub) Channel() string { return s.channel }

func (s *natsSub) Publish(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrUnsubscribed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.broker.nc.Publish(s.subject, payload); err != nil {
		return errors.Wrapf(err, "publish %s", s.subject)
	}
	return nil
}

func (s *natsSub) Unsubscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return errors.Wrapf(err, "unsubscribe %s", s.subject)
	}
	return nil
}
