package collab

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("collaboration session not connected")
	ErrAlreadyConnected = errors.New("collaboration session already connected")
	ErrQueueFull        = errors.New("collaboration outbound queue full")
)

// ConnectionError reports a failed subscribe or unsubscribe against the
// room channel.
type ConnectionError struct {
	Op   string
	Room string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("collab %s room=%s: %v", e.Op, e.Room, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// MalformedEventError reports an inbound message that failed validation.
// The session drops such messages and keeps running.
type MalformedEventError struct {
	Reason string
	Err    error
}

func (e *MalformedEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed collaboration event: %s: %v", e.Reason, e.Err)
	}
	return "malformed collaboration event: " + e.Reason
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// PublishError reports a fire-and-forget publish that never reached the
// channel.
type PublishError struct {
	Type EventType
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Type, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
