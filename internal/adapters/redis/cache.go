package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// SetSeatLock takes a short-lived advisory lock on a seat before the
// database acquisition runs. It is a fast-path rejection for hot seats, not
// a correctness mechanism: the store's conditional insert is the ground
// truth.
func (c *Cache) SetSeatLock(ctx context.Context, eventID, seatID, sessionID string, ttl time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, seatLockKey(eventID, seatID), sessionID, ttl)
	return res.Val(), res.Err()
}

// ReleaseSeatLock drops the advisory lock, typically after the hold expired
// or was released before its TTL.
func (c *Cache) ReleaseSeatLock(ctx context.Context, eventID, seatID string) error {
	return c.client.Del(ctx, seatLockKey(eventID, seatID)).Err()
}

func seatLockKey(eventID, seatID string) string {
	return "seatlock:" + eventID + ":" + seatID
}
