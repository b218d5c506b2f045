package vacancy

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const recentNewKey = "vacancies:new"

// Cache keeps a hot set of recently-new vacancy ids in Redis so read-side
// collaborators can answer "what is new" without scanning event rows.
// Every write is best-effort; callers log and move on.
type Cache struct {
	rdb    *redis.Client
	window time.Duration
}

func NewCache(rdb *redis.Client, windowHours int) *Cache {
	return &Cache{rdb: rdb, window: time.Duration(windowHours) * time.Hour}
}

// RecordNew adds the id to the recent set and evicts entries older than the
// configured window.
func (c *Cache) RecordNew(ctx context.Context, id string, seenAt time.Time) error {
	if err := c.rdb.ZAdd(ctx, recentNewKey, redis.Z{
		Score:  float64(seenAt.Unix()),
		Member: id,
	}).Err(); err != nil {
		return err
	}
	cutoff := time.Now().Add(-c.window).Unix()
	return c.rdb.ZRemRangeByScore(ctx, recentNewKey, "-inf", strconv.FormatInt(cutoff, 10)).Err()
}

// RecentNewIDs returns ids first seen within the window, newest first.
func (c *Cache) RecentNewIDs(ctx context.Context) ([]string, error) {
	cutoff := time.Now().Add(-c.window).Unix()
	return c.rdb.ZRevRangeByScore(ctx, recentNewKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff, 10),
		Max: "+inf",
	}).Result()
}
