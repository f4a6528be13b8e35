package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/faeln1/go-mockup-api/internal/domain/collab"
	"github.com/faeln1/go-mockup-api/internal/platform/realtime"
	"github.com/faeln1/go-mockup-api/pkg/logger"
)

const (
	defaultOutboundQueue = 256
	publishTimeout       = 5 * time.Second
)

type SessionOptions struct {
	// DedupeUsers reports a deduplicated presence set to OnUsersUpdate
	// instead of "cursor keys + joined id".
	DedupeUsers bool
	// NotifyUsersOnLeave fires OnUsersUpdate on user_leave as well.
	NotifyUsersOnLeave bool
	QueueSize          int
	Now                func() time.Time
	Log                logger.Logger
}

// CollaborationSession is one participant's view of one design room.
type CollaborationSession struct {
	roomID   string
	userID   string
	userName string
	broker   realtime.Broker
	opts     SessionOptions
	log      logger.Logger

	mu          sync.Mutex
	sub         realtime.Subscription
	outbound    chan collab.Event
	pumpDone    chan struct{}
	cursors     map[string]*collab.Cursor
	cursorOrder []string
	users       []string
	lastTS      int64

	onCursors   func([]collab.Cursor)
	onElements  func(collab.ElementUpdatePayload)
	onUsers     func([]string)
	onSelection func(userID string, elementIDs []string)
	onError     func(error)
}

func NewCollaborationSession(roomID, userID, userName string, broker realtime.Broker, opts SessionOptions) *CollaborationSession {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultOutboundQueue
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Log
	if log == nil {
		log = logger.Noop
	}
	return &CollaborationSession{
		roomID:   roomID,
		userID:   userID,
		userName: userName,
		broker:   broker,
		opts:     opts,
		log:      log.Sub("collab:" + roomID + ":" + userID),
		cursors:  make(map[string]*collab.Cursor),
	}
}

func (s *CollaborationSession) RoomID() string   { return s.roomID }
func (s *CollaborationSession) UserID() string   { return s.userID }
func (s *CollaborationSession) UserName() string { return s.userName }

func (s *CollaborationSession) OnCursorsUpdate(fn func([]collab.Cursor)) {
	s.mu.Lock()
	s.onCursors = fn
	s.mu.Unlock()
}

func (s *CollaborationSession) OnElementsUpdate(fn func(collab.ElementUpdatePayload)) {
	s.mu.Lock()
	s.onElements = fn
	s.mu.Unlock()
}

func (s *CollaborationSession) OnUsersUpdate(fn func([]string)) {
	s.mu.Lock()
	s.onUsers = fn
	s.mu.Unlock()
}

func (s *CollaborationSession) OnSelectionUpdate(fn func(userID string, elementIDs []string)) {
	s.mu.Lock()
	s.onSelection = fn
	s.mu.Unlock()
}

// OnError receives PublishError and MalformedEventError values. Queue
// overflow is reported on the caller's goroutine without blocking; publish
// failures come from the pump and decode failures from the delivery goroutine.
func (s *CollaborationSession) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Connect subscribes to the room channel and announces the participant.
func (s *CollaborationSession) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.sub != nil {
		s.mu.Unlock()
		return &collab.ConnectionError{Op: "subscribe", Room: s.roomID, Err: collab.ErrAlreadyConnected}
	}
	s.mu.Unlock()

	sub, err := s.broker.Subscribe(ctx, s.roomID, s.handleMessage)
	if err != nil {
		return &collab.ConnectionError{Op: "subscribe", Room: s.roomID, Err: err}
	}

	queue := make(chan collab.Event, s.opts.QueueSize)
	done := make(chan struct{})

	s.mu.Lock()
	s.sub = sub
	s.outbound = queue
	s.pumpDone = done
	s.mu.Unlock()

	go s.pump(sub, queue, done)
	s.log.Debugf("connected")
	s.enqueue(collab.JoinPayload{})
	return nil
}

// Disconnect announces the departure, unsubscribes and drops every callback.
// It is a no-op when the session never connected.
func (s *CollaborationSession) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	sub := s.sub
	queue := s.outbound
	done := s.pumpDone
	s.sub = nil
	s.outbound = nil
	s.pumpDone = nil
	s.onCursors = nil
	s.onElements = nil
	s.onUsers = nil
	s.onSelection = nil
	s.onError = nil
	s.cursors = make(map[string]*collab.Cursor)
	s.cursorOrder = nil
	s.users = nil
	s.mu.Unlock()

	if sub == nil {
		return nil
	}

	leave := s.newEvent(collab.LeavePayload{})
	select {
	case queue <- leave:
	case <-ctx.Done():
	}
	close(queue)
	select {
	case <-done:
	case <-ctx.Done():
	}

	if err := sub.Unsubscribe(ctx); err != nil {
		return &collab.ConnectionError{Op: "unsubscribe", Room: s.roomID, Err: err}
	}
	s.log.Debugf("disconnected")
	return nil
}

func (s *CollaborationSession) UpdateCursor(x, y float64) {
	s.enqueue(collab.CursorPayload{X: x, Y: y})
}

// UpdateElement publishes changes for elementID without interpreting them.
func (s *CollaborationSession) UpdateElement(elementID string, changes json.RawMessage) {
	if len(changes) == 0 {
		changes = json.RawMessage(`{}`)
	}
	s.enqueue(collab.ElementUpdatePayload{ElementID: elementID, Changes: changes})
}

func (s *CollaborationSession) UpdateSelection(elementIDs []string) {
	ids := make([]string, len(elementIDs))
	copy(ids, elementIDs)
	s.enqueue(collab.SelectionPayload{ElementIDs: ids})
}

func (s *CollaborationSession) newEvent(p collab.Payload) collab.Event {
	ts := s.opts.Now().UnixMilli()
	s.mu.Lock()
	if ts < s.lastTS {
		ts = s.lastTS
	}
	s.lastTS = ts
	s.mu.Unlock()
	return collab.Event{UserID: s.userID, UserName: s.userName, Timestamp: ts, Payload: p}
}

func (s *CollaborationSession) enqueue(p collab.Payload) {
	evt := s.newEvent(p)

	s.mu.Lock()
	queue := s.outbound
	if queue == nil {
		onErr := s.onError
		s.mu.Unlock()
		s.report(onErr, &collab.PublishError{Type: p.Type(), Err: collab.ErrNotConnected})
		return
	}
	select {
	case queue <- evt:
		s.mu.Unlock()
	default:
		onErr := s.onError
		s.mu.Unlock()
		s.report(onErr, &collab.PublishError{Type: p.Type(), Err: collab.ErrQueueFull})
	}
}

// pump publishes queued events in order until the queue is closed.
func (s *CollaborationSession) pump(sub realtime.Subscription, queue <-chan collab.Event, done chan<- struct{}) {
	defer close(done)
	for evt := range queue {
		payload, err := collab.Encode(evt)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			err = sub.Publish(ctx, payload)
			cancel()
		}
		if err != nil {
			s.mu.Lock()
			onErr := s.onError
			s.mu.Unlock()
			s.report(onErr, &collab.PublishError{Type: evt.Type(), Err: err})
		}
	}
}

func (s *CollaborationSession) report(fn func(error), err error) {
	s.log.Debugf("%v", err)
	if fn != nil {
		fn(err)
	}
}

func (s *CollaborationSession) handleMessage(raw []byte) {
	evt, err := collab.Decode(raw)
	if err != nil {
		s.log.Warnf("dropping inbound message: %v", err)
		s.mu.Lock()
		onErr := s.onError
		s.mu.Unlock()
		if onErr != nil {
			onErr(err)
		}
		return
	}
	s.apply(evt)
}

func (s *CollaborationSession) apply(evt collab.Event) {
	if evt.UserID == s.userID {
		return
	}

	switch p := evt.Payload.(type) {
	case collab.CursorPayload:
		s.mu.Lock()
		c, ok := s.cursors[evt.UserID]
		if !ok {
			c = &collab.Cursor{UserID: evt.UserID, Color: collab.ColorFor(evt.UserID)}
			s.cursors[evt.UserID] = c
			s.cursorOrder = append(s.cursorOrder, evt.UserID)
		}
		c.UserName = evt.UserName
		c.X, c.Y = p.X, p.Y
		if s.opts.DedupeUsers {
			s.addUserLocked(evt.UserID)
		}
		snap := s.cursorSnapshotLocked()
		fn := s.onCursors
		s.mu.Unlock()
		if fn != nil {
			fn(snap)
		}

	case collab.ElementUpdatePayload:
		s.mu.Lock()
		fn := s.onElements
		s.mu.Unlock()
		if fn != nil {
			fn(p)
		}

	case collab.SelectionPayload:
		s.mu.Lock()
		fn := s.onSelection
		s.mu.Unlock()
		if fn != nil {
			fn(evt.UserID, p.ElementIDs)
		}

	case collab.JoinPayload:
		s.mu.Lock()
		var users []string
		if s.opts.DedupeUsers {
			s.addUserLocked(evt.UserID)
			users = append([]string(nil), s.users...)
		} else {
			// Known users are the cursor keys; the joiner is appended as is,
			// so a rejoin can be listed twice.
			users = append(append([]string(nil), s.cursorOrder...), evt.UserID)
		}
		fn := s.onUsers
		s.mu.Unlock()
		if fn != nil {
			fn(users)
		}

	case collab.LeavePayload:
		s.mu.Lock()
		_, hadCursor := s.cursors[evt.UserID]
		if hadCursor {
			delete(s.cursors, evt.UserID)
			s.cursorOrder = removeString(s.cursorOrder, evt.UserID)
		}
		hadUser := false
		if s.opts.DedupeUsers {
			before := len(s.users)
			s.users = removeString(s.users, evt.UserID)
			hadUser = len(s.users) != before
		}
		snap := s.cursorSnapshotLocked()
		fnCursors := s.onCursors
		var users []string
		fnUsers := s.onUsers
		if s.opts.NotifyUsersOnLeave && (hadCursor || hadUser) {
			if s.opts.DedupeUsers {
				users = append([]string(nil), s.users...)
			} else {
				users = append([]string(nil), s.cursorOrder...)
			}
		} else {
			fnUsers = nil
		}
		s.mu.Unlock()
		if hadCursor && fnCursors != nil {
			fnCursors(snap)
		}
		if fnUsers != nil {
			fnUsers(users)
		}
	}
}

func (s *CollaborationSession) addUserLocked(userID string) {
	for _, id := range s.users {
		if id == userID {
			return
		}
	}
	s.users = append(s.users, userID)
}

func (s *CollaborationSession) cursorSnapshotLocked() []collab.Cursor {
	out := make([]collab.Cursor, 0, len(s.cursorOrder))
	for _, id := range s.cursorOrder {
		out = append(out, *s.cursors[id])
	}
	return out
}

// Cursors returns the current remote cursors in first-seen order.
func (s *CollaborationSession) Cursors() []collab.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursorSnapshotLocked()
}

func (s *CollaborationSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub != nil
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}
