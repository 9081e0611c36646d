package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/slabscan/api/internal/model"
)

const (
	jobKeyPrefix = "grading:job:"
	jobIndexKey  = "grading:jobs"
)

// RedisPersister stores job snapshots as JSON so in-flight jobs survive a restart.
type RedisPersister struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisPersister(redisClient *redis.Client, ttl time.Duration) *RedisPersister {
	return &RedisPersister{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Save writes the job snapshot and indexes its id
func (p *RedisPersister) Save(ctx context.Context, job *model.GradingJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := p.redis.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, p.ttl)
	pipe.SAdd(ctx, jobIndexKey, job.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// Delete removes the job snapshot
func (p *RedisPersister) Delete(ctx context.Context, id string) error {
	pipe := p.redis.TxPipeline()
	pipe.Del(ctx, jobKey(id))
	pipe.SRem(ctx, jobIndexKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

// LoadAll returns every snapshot that has not expired. Expired ids are
// dropped from the index.
func (p *RedisPersister) LoadAll(ctx context.Context) ([]model.GradingJob, error) {
	ids, err := p.redis.SMembers(ctx, jobIndexKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	values, err := p.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var jobs []model.GradingJob
	var stale []interface{}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var job model.GradingJob
		if err := json.Unmarshal([]byte(s), &job); err != nil {
			stale = append(stale, ids[i])
			continue
		}
		jobs = append(jobs, job)
	}

	if len(stale) > 0 {
		p.redis.SRem(ctx, jobIndexKey, stale...)
	}
	return jobs, nil
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
