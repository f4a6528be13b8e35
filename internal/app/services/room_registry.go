package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/faeln1/go-mockup-api/internal/platform/realtime"
	"github.com/faeln1/go-mockup-api/pkg/logger"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomConnection is one live gateway socket.
type RoomConnection struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"roomId"`
	UserID   string    `json:"userId"`
	UserName string    `json:"userName"`
	JoinedAt time.Time `json:"joinedAt"`
}

type RoomSummary struct {
	RoomID      string           `json:"roomId"`
	Connections []RoomConnection `json:"connections"`
	// Online comes from the presence store and may include users connected
	// to other nodes.
	Online []string `json:"online,omitempty"`
}

// RoomRegistry tracks gateway connections on this node and mirrors them into
// the presence store.
type RoomRegistry struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]RoomConnection // room -> conn id -> conn
	presence realtime.PresenceStore
	ttl      time.Duration
	log      logger.Logger
}

func NewRoomRegistry(presence realtime.PresenceStore, ttl time.Duration, log logger.Logger) *RoomRegistry {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	if log == nil {
		log = logger.Noop
	}
	return &RoomRegistry{rooms: make(map[string]map[string]RoomConnection), presence: presence, ttl: ttl, log: log}
}

// PresenceTTL is how long an entry survives without a Heartbeat.
func (m *RoomRegistry) PresenceTTL() time.Duration { return m.ttl }

func (m *RoomRegistry) Add(ctx context.Context, roomID, userID, userName string) RoomConnection {
	conn := RoomConnection{ID: uuid.NewString(), RoomID: roomID, UserID: userID, UserName: userName, JoinedAt: time.Now().UTC()}
	m.mu.Lock()
	conns := m.rooms[roomID]
	if conns == nil {
		conns = make(map[string]RoomConnection)
		m.rooms[roomID] = conns
	}
	conns[conn.ID] = conn
	m.mu.Unlock()

	m.Heartbeat(ctx, conn)
	return conn
}

func (m *RoomRegistry) Heartbeat(ctx context.Context, conn RoomConnection) {
	if m.presence == nil {
		return
	}
	if err := m.presence.Online(ctx, conn.RoomID, conn.UserID, m.ttl); err != nil {
		m.log.Warnf("presence heartbeat room=%s user=%s: %v", conn.RoomID, conn.UserID, err)
	}
}

func (m *RoomRegistry) Remove(ctx context.Context, conn RoomConnection) {
	m.mu.Lock()
	stillHere := false
	if conns := m.rooms[conn.RoomID]; conns != nil {
		delete(conns, conn.ID)
		for _, other := range conns {
			if other.UserID == conn.UserID {
				stillHere = true
				break
			}
		}
		if len(conns) == 0 {
			delete(m.rooms, conn.RoomID)
		}
	}
	m.mu.Unlock()

	if m.presence == nil || stillHere {
		return
	}
	if err := m.presence.Offline(ctx, conn.RoomID, conn.UserID); err != nil {
		m.log.Warnf("presence offline room=%s user=%s: %v", conn.RoomID, conn.UserID, err)
	}
}

func (m *RoomRegistry) List(ctx context.Context) []RoomSummary {
	m.mu.RLock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	out := make([]RoomSummary, 0, len(ids))
	for _, id := range ids {
		if summary, err := m.Get(ctx, id); err == nil {
			out = append(out, summary)
		}
	}
	return out
}

// Get reports a room known locally or to the presence store.
func (m *RoomRegistry) Get(ctx context.Context, roomID string) (RoomSummary, error) {
	m.mu.RLock()
	conns := m.rooms[roomID]
	summary := RoomSummary{RoomID: roomID, Connections: make([]RoomConnection, 0, len(conns))}
	for _, c := range conns {
		summary.Connections = append(summary.Connections, c)
	}
	m.mu.RUnlock()
	sort.Slice(summary.Connections, func(i, j int) bool {
		return summary.Connections[i].JoinedAt.Before(summary.Connections[j].JoinedAt)
	})

	if m.presence != nil {
		online, err := m.presence.List(ctx, roomID)
		if err != nil {
			m.log.Warnf("presence list room=%s: %v", roomID, err)
		} else {
			summary.Online = online
		}
	}
	if len(summary.Connections) == 0 && len(summary.Online) == 0 {
		return summary, ErrRoomNotFound
	}
	return summary, nil
}

func (m *RoomRegistry) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, conns := range m.rooms {
		n += len(conns)
	}
	return n
}
