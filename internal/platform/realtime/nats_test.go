package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
)

func newNATSBroker(t *testing.T) *NATSBroker {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	srv := natsserver.RunServer(&opts)
	t.Cleanup(srv.Shutdown)

	b, err := NewNATSBroker(NATSConfig{Servers: []string{srv.ClientURL()}, Name: "test"}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSubjectForEscapesReservedBytes(t *testing.T) {
	if got := subjectFor("design:a.b *>"); got != "mockup.room.design:a_2eb_20_2a_3e" {
		t.Fatalf("unexpected subject %q", got)
	}
	if got := subjectFor("plain-room"); got != "mockup.room.plain-room" {
		t.Fatalf("unexpected subject %q", got)
	}
}

func TestSubjectForKeepsRoomsDistinct(t *testing.T) {
	rooms := []string{"design.1", "design_1", "design_2e1", "design 1", "design*1", "design>1", "design_5f1", "désign.1"}
	seen := make(map[string]string)
	for _, room := range rooms {
		subject := subjectFor(room)
		if prev, ok := seen[subject]; ok {
			t.Fatalf("rooms %q and %q share subject %q", prev, room, subject)
		}
		seen[subject] = room
	}
}

func TestNATSBrokerDeliversAfterSubscribe(t *testing.T) {
	b := newNATSBroker(t)
	ctx := context.Background()

	gotA := make(chan string, 4)
	gotB := make(chan string, 4)
	subA, err := b.Subscribe(ctx, "design.1", func(p []byte) { gotA <- string(p) })
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	// Subscribe flushes, so a publish right after it must reach b.
	if _, err := b.Subscribe(ctx, "design.1", func(p []byte) { gotB <- string(p) }); err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	if err := subA.Publish(ctx, []byte("join")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if v := waitFor(t, gotA); v != "join" {
		t.Fatalf("sender got %q", v)
	}
	if v := waitFor(t, gotB); v != "join" {
		t.Fatalf("peer got %q", v)
	}
}

func TestNATSBrokerIsolatesLookalikeRooms(t *testing.T) {
	b := newNATSBroker(t)
	ctx := context.Background()

	other := make(chan string, 1)
	pub, err := b.Subscribe(ctx, "design.1", nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := b.Subscribe(ctx, "design_1", func(p []byte) { other <- string(p) }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := pub.Publish(ctx, []byte("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case v := <-other:
		t.Fatalf("design_1 received %q published on design.1", v)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNATSBrokerUnsubscribe(t *testing.T) {
	b := newNATSBroker(t)
	ctx := context.Background()

	got := make(chan string, 4)
	sub, err := b.Subscribe(ctx, "r", func(p []byte) { got <- string(p) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Unsubscribe(ctx); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := sub.Publish(ctx, []byte("x")); !errors.Is(err, ErrUnsubscribed) {
		t.Fatalf("expected ErrUnsubscribed, got %v", err)
	}
	if err := sub.Unsubscribe(ctx); err != nil {
		t.Fatalf("second unsubscribe: %v", err)
	}
	if _, err := b.Subscribe(ctx, "  ", nil); !errors.Is(err, ErrEmptyChannel) {
		t.Fatalf("expected ErrEmptyChannel, got %v", err)
	}
}

func TestNATSBrokerRejectsAfterClose(t *testing.T) {
	b := newNATSBroker(t)
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !b.nc.IsClosed() {
		if time.Now().After(deadline) {
			t.Fatalf("connection never closed after drain")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := b.Subscribe(context.Background(), "r", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
