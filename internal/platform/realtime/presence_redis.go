package realtime

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "mockup:presence:"

// RedisPresence keeps one hash per room: field = userId, value = expiry in
// unix milliseconds. Stale fields are pruned when the room is listed.
type RedisPresence struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client, now: time.Now}
}

func presenceKey(room string) string { return presenceKeyPrefix + room }

func (p *RedisPresence) Online(ctx context.Context, room, userID string, ttl time.Duration) error {
	key := presenceKey(room)
	expires := p.now().Add(ttl).UnixMilli()
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, key, userID, expires)
	// the hash itself outlives its freshest member by one ttl
	pipe.Expire(ctx, key, 2*ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "presence online %s/%s", room, userID)
	}
	return nil
}

func (p *RedisPresence) Offline(ctx context.Context, room, userID string) error {
	if err := p.client.HDel(ctx, presenceKey(room), userID).Err(); err != nil {
		return errors.Wrapf(err, "presence offline %s/%s", room, userID)
	}
	return nil
}

func (p *RedisPresence) List(ctx context.Context, room string) ([]string, error) {
	key := presenceKey(room)
	entries, err := p.client.HGetAll(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, errors.Wrapf(err, "presence list %s", room)
	}

	now := p.now().UnixMilli()
	out := make([]string, 0, len(entries))
	var stale []string
	for userID, raw := range entries {
		expires, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || expires <= now {
			stale = append(stale, userID)
			continue
		}
		out = append(out, userID)
	}
	if len(stale) > 0 {
		if err := p.client.HDel(ctx, key, stale...).Err(); err != nil {
			return nil, errors.Wrapf(err, "presence prune %s", room)
		}
	}
	sort.Strings(out)
	return out, nil
}
