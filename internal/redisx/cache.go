// Package redisx caches the last known stock result per product/region.
package redisx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stockwatch/stockwatch/internal/models"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// ResultCache stores ephemeral probe results with a short TTL.
type ResultCache struct {
	rdb *redis.Client
}

func NewResultCache(rdb *redis.Client) *ResultCache {
	return &ResultCache{rdb: rdb}
}

// SetLastResult records the latest probe outcome for a product/region.
func (c *ResultCache) SetLastResult(ctx context.Context, productID int64, region models.Region, res models.StockResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(KeyLastResult, productID, region)
	return c.rdb.Set(ctx, key, b, TTLLastResult).Err()
}

// GetLastResult returns the cached result and whether one was present.
func (c *ResultCache) GetLastResult(ctx context.Context, productID int64, region models.Region) (models.StockResult, bool, error) {
	key := fmt.Sprintf(KeyLastResult, productID, region)
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return models.StockResult{}, false, nil
	}
	if err != nil {
		return models.StockResult{}, false, err
	}
	var res models.StockResult
	if err := json.Unmarshal(b, &res); err != nil {
		return models.StockResult{}, false, err
	}
	return res, true, nil
}
