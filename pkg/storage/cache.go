package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/comorbidity/pkg/common/models"
)

const cacheKeyPrefix = "score:"

// ResultCache keeps computed results keyed by input fingerprint. A changed
// input has a different fingerprint, so stale results are never returned.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultCache(client *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{client: client, ttl: ttl}
}

func (c *ResultCache) Get(ctx context.Context, fingerprint string) (models.ScoreResult, bool, error) {
	data, err := c.client.Get(ctx, cacheKeyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.ScoreResult{}, false, nil
	}
	if err != nil {
		return models.ScoreResult{}, false, err
	}
	var res models.ScoreResult
	if err := json.Unmarshal(data, &res); err != nil {
		return models.ScoreResult{}, false, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return res, true, nil
}

// Set stores a successful result. Failed results and results without a
// fingerprint are not cached.
func (c *ResultCache) Set(ctx context.Context, res models.ScoreResult) error {
	if res.Failed() || res.Fingerprint == "" {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKeyPrefix+res.Fingerprint, data, c.ttl).Err()
}
