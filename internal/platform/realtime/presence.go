package realtime

import (
	"context"
	"sort"
	"sync"
	"time"
)

// PresenceStore is a server-side index of who is connected to which room.
// Entries expire unless refreshed by a heartbeat.
type PresenceStore interface {
	Online(ctx context.Context, room, userID string, ttl time.Duration) error
	Offline(ctx context.Context, room, userID string) error
	List(ctx context.Context, room string) ([]string, error)
}

type MemoryPresence struct {
	mu    sync.Mutex
	rooms map[string]map[string]time.Time
	now   func() time.Time
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{rooms: make(map[string]map[string]time.Time), now: time.Now}
}

func (p *MemoryPresence) Online(_ context.Context, room, userID string, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	users := p.rooms[room]
	if users == nil {
		users = make(map[string]time.Time)
		p.rooms[room] = users
	}
	users[userID] = p.now().Add(ttl)
	return nil
}

func (p *MemoryPresence) Offline(_ context.Context, room, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if users := p.rooms[room]; users != nil {
		delete(users, userID)
		if len(users) == 0 {
			delete(p.rooms, room)
		}
	}
	return nil
}

func (p *MemoryPresence) List(_ context.Context, room string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	users := p.rooms[room]
	out := make([]string, 0, len(users))
	for id, expires := range users {
		if !expires.After(now) {
			delete(users, id)
			continue
		}
		out = append(out, id)
	}
	if len(users) == 0 {
		delete(p.rooms, room)
	}
	sort.Strings(out)
	return out, nil
}
