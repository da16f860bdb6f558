package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ajharbinger/perfeval/internal/logger"
	"github.com/ajharbinger/perfeval/internal/metrics"
	"github.com/ajharbinger/perfeval/internal/repository"
	"github.com/ajharbinger/perfeval/internal/scoring"
)

const modelKeyPrefix = "perfeval:model:"

// ModelKey is the Redis key of a cached evaluation model
func ModelKey(id string) string {
	return modelKeyPrefix + id
}

// cachedModels is a read-through cache in front of a ModelRepository.
// Writes go to the repository first and then invalidate the key; a cache
// failure never fails the call.
type cachedModels struct {
	repository.ModelRepository
	redis  *RedisClient
	ttl    time.Duration
	logger logger.Logger
}

// NewCachedModels wraps repo with a Redis cache
func NewCachedModels(repo repository.ModelRepository, client *RedisClient, ttl time.Duration, log logger.Logger) repository.ModelRepository {
	return &cachedModels{ModelRepository: repo, redis: client, ttl: ttl, logger: log}
}

func (c *cachedModels) GetByID(ctx context.Context, id string) (*scoring.EvaluationModel, error) {
	raw, err := c.redis.Get(ctx, ModelKey(id))
	switch {
	case err == nil:
		var m scoring.EvaluationModel
		jsonErr := json.Unmarshal(raw, &m)
		if jsonErr == nil {
			metrics.ModelCacheLookups.WithLabelValues(metrics.OutcomeHit).Inc()
			return &m, nil
		}
		c.logger.Warn("Discarding undecodable cached model", "model_id", id, "error", jsonErr.Error())
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Model cache read failed", "model_id", id, "error", err.Error())
	}
	metrics.ModelCacheLookups.WithLabelValues(metrics.OutcomeMiss).Inc()

	m, err := c.ModelRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(m); err == nil {
		if err := c.redis.Set(ctx, ModelKey(id), raw, c.ttl); err != nil {
			c.logger.Warn("Model cache write failed", "model_id", id, "error", err.Error())
		}
	}
	return m, nil
}

func (c *cachedModels) Put(ctx context.Context, m scoring.EvaluationModel) error {
	if err := c.ModelRepository.Put(ctx, m); err != nil {
		return err
	}
	c.invalidate(ctx, m.ID)
	return nil
}

func (c *cachedModels) Delete(ctx context.Context, id string) error {
	if err := c.ModelRepository.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *cachedModels) invalidate(ctx context.Context, id string) {
	if err := c.redis.Del(ctx, ModelKey(id)); err != nil {
		c.logger.Warn("Model cache invalidation failed", "model_id", id, "error", err.Error())
	}
}
