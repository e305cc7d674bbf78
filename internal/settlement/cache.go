package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores computed earnings summaries in Redis behind a per-driver
// generation counter. Invalidation bumps the counter instead of deleting
// keys, so a reader that raced a mutation can never see a stale summary
// under the current generation.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func generationKey(driverID int64) string {
	return fmt.Sprintf("fleetline:earnings:gen:%d", driverID)
}

func summaryKey(driverID, generation int64, scope string) string {
	return fmt.Sprintf("fleetline:earnings:%d:%d:%s", driverID, generation, scope)
}

func (c *Cache) generation(ctx context.Context, driverID int64) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(driverID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return gen, nil
}

// Get returns the cached summary for the driver's current generation, or nil
// on a miss.
func (c *Cache) Get(ctx context.Context, driverID int64, scope string) (*EarningsSummary, error) {
	gen, err := c.generation(ctx, driverID)
	if err != nil {
		return nil, err
	}
	raw, err := c.client.Get(ctx, summaryKey(driverID, gen, scope)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var summary EarningsSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Set stores the summary under the driver's current generation.
func (c *Cache) Set(ctx context.Context, driverID int64, scope string, summary EarningsSummary) error {
	gen, err := c.generation(ctx, driverID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKey(driverID, gen, scope), raw, c.ttl).Err()
}

// InvalidateDriver advances the driver's generation, orphaning every cached
// summary for it. Orphaned keys expire via TTL.
func (c *Cache) InvalidateDriver(ctx context.Context, driverID int64) error {
	return c.client.Incr(ctx, generationKey(driverID)).Err()
}
