package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-results-service/internal/domain"
)

const snapshotKey = "leaderboard:snapshot"

// SnapshotReader loads the stored leaderboard on a cache miss.
type SnapshotReader interface {
	Snapshot(ctx context.Context) (domain.Leaderboard, error)
}

// LeaderboardCache keeps the rendered leaderboard snapshot in Redis as a
// JSON blob. Reads go through singleflight so a cold cache triggers one
// store query at most; the orchestrator invalidates the key after every
// committed recompute.
type LeaderboardCache struct {
	client *redis.Client
	reader SnapshotReader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewLeaderboardCache(client *redis.Client, reader SnapshotReader, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		client: client,
		reader: reader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *LeaderboardCache) Snapshot(ctx context.Context) (domain.Leaderboard, error) {
	raw, err := c.client.Get(ctx, snapshotKey).Bytes()
	if err == nil {
		var lb domain.Leaderboard
		if err := json.Unmarshal(raw, &lb); err == nil {
			return lb, nil
		}
		// Corrupt blob: fall through and rebuild it.
	}

	result, err, _ := c.sf.Do(snapshotKey, func() (interface{}, error) {
		// Re-check in case another goroutine filled the key.
		raw, err := c.client.Get(ctx, snapshotKey).Bytes()
		if err == nil {
			var lb domain.Leaderboard
			if err := json.Unmarshal(raw, &lb); err == nil {
				return lb, nil
			}
		}

		lb, err := c.reader.Snapshot(ctx)
		if err != nil {
			return domain.Leaderboard{}, err
		}

		if encoded, err := json.Marshal(lb); err == nil {
			_ = c.client.Set(ctx, snapshotKey, encoded, c.ttlWithJitter()).Err()
		}
		return lb, nil
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return result.(domain.Leaderboard), nil
}

// Invalidate drops the cached snapshot so the next read sees fresh ranks.
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, snapshotKey).Err()
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
