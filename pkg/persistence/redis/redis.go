// Package redis provides a Redis persistence implementation. Documents are
// stored as JSON values with secondary indexes kept in sets, and timers
// live on a sorted set scored by fire time.
package redis

import (
	"context"
	"fmt"

	"github.com/flowzap/flowzap/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "flowzap"

// Persistence implements persistence.Persistence on Redis.
type Persistence struct {
	client       *redis.Client
	flowRepo     *FlowRepository
	instanceRepo *InstanceRepository
	windowRepo   *WindowRepository
	healthRepo   *HealthRepository
	timerRepo    *TimerRepository
}

func NewPersistence(ctx context.Context, redisURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{
		client:       client,
		flowRepo:     &FlowRepository{client: client},
		instanceRepo: &InstanceRepository{client: client},
		windowRepo:   &WindowRepository{client: client},
		healthRepo:   &HealthRepository{client: client},
		timerRepo:    &TimerRepository{client: client},
	}, nil
}

func (p *Persistence) FlowRepository() persistence.FlowRepository {
	return p.flowRepo
}

func (p *Persistence) InstanceRepository() persistence.InstanceRepository {
	return p.instanceRepo
}

func (p *Persistence) WindowRepository() persistence.WindowRepository {
	return p.windowRepo
}

func (p *Persistence) HealthRepository() persistence.HealthRepository {
	return p.healthRepo
}

func (p *Persistence) TimerRepository() persistence.TimerRepository {
	return p.timerRepo
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}
