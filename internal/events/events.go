// Package events broadcasts job state transitions to external observers.
// Publishing is best-effort: a lost event never fails or delays a pipeline.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"transcript-pipeline/internal/logger"
	"transcript-pipeline/internal/types"
)

// Channel is the pub/sub topic dashboards subscribe to.
const Channel = "job_updates"

// Event is the status payload published on each transition.
type Event struct {
	JobID        string            `json:"job_id"`
	Status       types.JobStatus   `json:"status"`
	CurrentStage string            `json:"current_stage,omitempty"`
	StageID      string            `json:"stage_id,omitempty"`
	StageStatus  types.StageStatus `json:"stage_status,omitempty"`
	ModelUsed    string            `json:"model_used,omitempty"`
	Error        string            `json:"error,omitempty"`
	CostEstimate float64           `json:"cost_estimate"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Publisher delivers events to observers. Implementations must not block
// pipeline progress and must swallow delivery failures.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// RedisPublisher publishes JSON events on a Redis channel.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher verifies connectivity and returns a publisher. A failed
// ping is reported to the caller so startup can degrade to log-only.
func NewRedisPublisher(ctx context.Context, addr string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisPublisher{client: client}, nil
}

// Publish sends the event, bounded by a short timeout so a stalled Redis
// cannot stall a worker.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) {
	log := logger.New().WithField("component", "events")

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.WithError(err).Warn("failed to encode event")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.client.Publish(ctx, Channel, payload).Err(); err != nil {
		log.WithError(err).Warn("failed to publish event")
	}
}

// LogPublisher writes events to the log, for deployments without Redis.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, ev Event) {
	logger.New().WithField("component", "events").
		WithField("job_id", ev.JobID).
		WithField("status", ev.Status).
		WithField("stage_id", ev.StageID).
		WithField("stage_status", ev.StageStatus).
		Debug("job status event")
}
