package board

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Board keeps the now-serving number per queue in Redis so waiting-room
// displays can poll cheaply without touching Postgres. Entries expire at
// the end of the day; a missing key reads as zero.
type Board struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client) *Board {
	return &Board{rdb: rdb, ttl: 12 * time.Hour}
}

func key(queueID string) string {
	return "queue:" + queueID + ":now_serving"
}

func (b *Board) SetNowServing(ctx context.Context, queueID string, number int) error {
	return b.rdb.Set(ctx, key(queueID), number, b.ttl).Err()
}

func (b *Board) NowServing(ctx context.Context, queueID string) (int, error) {
	val, err := b.rdb.Get(ctx, key(queueID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
