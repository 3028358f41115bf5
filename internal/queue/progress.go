package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const progressTTL = 24 * time.Hour

// ProgressKey is the Redis hash holding a job's counters.
func ProgressKey(jobID string) string {
	return fmt.Sprintf("conversion:progress:%s", jobID)
}

// RedisProgress publishes job counters into a Redis hash with fields done,
// total and failed.
type RedisProgress struct {
	redis *redis.Client
}

func NewRedisProgress(client *redis.Client) *RedisProgress {
	return &RedisProgress{redis: client}
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (p *RedisProgress) Start(ctx context.Context, jobID string, total int) error {
	key := ProgressKey(jobID)
	pipe := p.redis.TxPipeline()
	pipe.HSet(ctx, key, "done", 0, "total", total, "failed", 0)
	pipe.Expire(ctx, key, progressTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisProgress) Update(ctx context.Context, jobID string, done, failed int) error {
	return p.redis.HSet(ctx, ProgressKey(jobID), "done", done, "failed", failed).Err()
}

// Progress is a snapshot read back from the hash.
type Progress struct {
	Done   int `json:"done"`
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// Get reads a job's counters; ok is false when the job is unknown or expired.
func (p *RedisProgress) Get(ctx context.Context, jobID string) (Progress, bool, error) {
	fields, err := p.redis.HGetAll(ctx, ProgressKey(jobID)).Result()
	if err != nil {
		return Progress{}, false, err
	}
	if len(fields) == 0 {
		return Progress{}, false, nil
	}
	var prog Progress
	for name, target := range map[string]*int{"done": &prog.Done, "total": &prog.Total, "failed": &prog.Failed} {
		v, err := strconv.Atoi(fields[name])
		if err != nil {
			return Progress{}, false, fmt.Errorf("progress field %s: %w", name, err)
		}
		*target = v
	}
	return prog, true, nil
}
