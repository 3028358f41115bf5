// Package queue runs conversion jobs through a Redis-backed asynq queue.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/params"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/types"
)

// TypeConversionRun is the asynq task type of a queued batch.
const TypeConversionRun = "conversion:run"

// Payload is the JSON body of a conversion:run task.
type Payload struct {
	JobID     string             `json:"job_id"`
	Paths     []string           `json:"paths"`
	Direction string             `json:"direction"`
	Params    map[string]float64 `json:"params"`
}

// NewPayload builds a payload from typed values.
func NewPayload(jobID string, paths []string, dir types.Direction, set params.Set) Payload {
	return Payload{
		JobID:     jobID,
		Paths:     paths,
		Direction: dir.String(),
		Params:    set.Map(),
	}
}

// Decode resolves the direction and parameter set carried by p.
func (p Payload) Decode() (types.Direction, params.Set, error) {
	dir, err := types.ParseDirection(p.Direction)
	if err != nil {
		return 0, params.Set{}, err
	}
	set, err := params.FromMap(p.Params)
	if err != nil {
		return 0, params.Set{}, err
	}
	return dir, set, nil
}

// NewTask wraps a payload into an asynq task.
func NewTask(p Payload) (*asynq.Task, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeConversionRun, body), nil
}

// RedisOptions addresses the Redis instance shared by client, worker and
// progress hashes.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

func (o RedisOptions) clientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	}
}

// Client enqueues conversion jobs.
type Client struct {
	client *asynq.Client
}

func NewClient(opts RedisOptions) *Client {
	return &Client{client: asynq.NewClient(opts.clientOpt())}
}

// Enqueue submits p and returns the asynq task ID.
func (c *Client) Enqueue(p Payload) (string, error) {
	if _, _, err := p.Decode(); err != nil {
		return "", err
	}
	task, err := NewTask(p)
	if err != nil {
		return "", err
	}
	info, err := c.client.Enqueue(task, asynq.MaxRetry(0))
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return info.ID, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
