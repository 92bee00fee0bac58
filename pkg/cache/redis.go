// Package cache persists session snapshots and a leaderboard mirror in
// Redis. This is the substitute for a real durable store in fallback mode,
// not a durability guarantee: each session lives under its own key, so
// concurrent writers to different sessions never overwrite each other.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"quiz-live/internal/models"
)

const (
	snapshotPrefix = "session:"
	leaderboardTTL = 24 * time.Hour
	snapshotTTL    = 24 * time.Hour
)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// SaveSnapshot writes the full serializable session state under its own
// key.
func (c *RedisCache) SaveSnapshot(ctx context.Context, snap models.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotPrefix+snap.Code, data, snapshotTTL).Err()
}

// GetSnapshot reads one session snapshot. Returns redis.Nil when absent.
func (c *RedisCache) GetSnapshot(ctx context.Context, code string) (models.SessionSnapshot, error) {
	var snap models.SessionSnapshot

	data, err := c.client.Get(ctx, snapshotPrefix+code).Bytes()
	if err != nil {
		return snap, err
	}

	err = json.Unmarshal(data, &snap)
	return snap, err
}

func (c *RedisCache) DeleteSnapshot(ctx context.Context, code string) error {
	pipe := c.client.Pipeline()
	pipe.Del(ctx, snapshotPrefix+code)
	pipe.Del(ctx, leaderboardKey(code))
	_, err := pipe.Exec(ctx)
	return err
}

// ListSnapshots scans all persisted sessions, used to re-seed the registry
// on boot.
func (c *RedisCache) ListSnapshots(ctx context.Context) ([]models.SessionSnapshot, error) {
	var snaps []models.SessionSnapshot

	iter := c.client.Scan(ctx, 0, snapshotPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := c.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue // expired between scan and get
			}
			return nil, err
		}

		var snap models.SessionSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", iter.Val(), err)
		}
		snaps = append(snaps, snap)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return snaps, nil
}

// leaderboardMember identifies one sorted-set member. Keyed by player id so
// two players sharing a display name stay distinct entries.
type leaderboardMember struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

// SetLeaderboard mirrors the ranked scores into a sorted set.
func (c *RedisCache) SetLeaderboard(ctx context.Context, code string, entries []models.LeaderboardEntry) error {
	key := leaderboardKey(code)

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	for _, entry := range entries {
		member, err := json.Marshal(leaderboardMember{
			PlayerID: entry.PlayerID,
			Name:     entry.Name,
		})
		if err != nil {
			return err
		}
		pipe.ZAdd(ctx, key, &redis.Z{
			Score:  float64(entry.Score),
			Member: string(member),
		})
	}
	pipe.Expire(ctx, key, leaderboardTTL)

	_, err := pipe.Exec(ctx)
	return err
}

// GetLeaderboard reads the mirrored scores, highest first. Ranks are
// re-derived positionally.
func (c *RedisCache) GetLeaderboard(ctx context.Context, code string) ([]models.LeaderboardEntry, error) {
	results, err := c.client.ZRevRangeWithScores(ctx, leaderboardKey(code), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]models.LeaderboardEntry, len(results))
	for i, z := range results {
		var member leaderboardMember
		if err := json.Unmarshal([]byte(z.Member.(string)), &member); err != nil {
			return nil, fmt.Errorf("decode leaderboard member for %s: %w", code, err)
		}
		entries[i] = models.LeaderboardEntry{
			PlayerID: member.PlayerID,
			Name:     member.Name,
			Score:    int(z.Score),
			Rank:     i + 1,
		}
	}
	return entries, nil
}

func leaderboardKey(code string) string {
	return "leaderboard:" + code
}
