package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

// TimerRepository keeps timer ids on a sorted set scored by fire time,
// with the full document in a companion hash.
type TimerRepository struct {
	client *redis.Client
}

func timersKey() string {
	return keyPrefix + ":timers"
}

func timerDataKey() string {
	return keyPrefix + ":timers:data"
}

func (r *TimerRepository) ScheduleTimer(ctx context.Context, timer *models.ScheduledTimer) error {
	data, err := json.Marshal(timer)
	if err != nil {
		return fmt.Errorf("failed to marshal timer %s: %w", timer.ID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, timersKey(), redis.Z{
		Score:  float64(timer.FireAt.UnixMilli()),
		Member: timer.ID,
	})
	pipe.HSet(ctx, timerDataKey(), timer.ID, data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to schedule timer %s: %w", timer.ID, err)
	}

	return nil
}

func (r *TimerRepository) DueTimers(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledTimer, error) {
	if limit <= 0 {
		limit = 100
	}

	ids, err := r.client.ZRangeByScore(ctx, timersKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query due timers: %w", err)
	}

	timers := make([]*models.ScheduledTimer, 0, len(ids))

	for _, id := range ids {
		data, err := r.client.HGet(ctx, timerDataKey(), id).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to load timer %s: %w", id, err)
		}

		var timer models.ScheduledTimer
		if err := json.Unmarshal([]byte(data), &timer); err != nil {
			return nil, fmt.Errorf("failed to unmarshal timer %s: %w", id, err)
		}

		timers = append(timers, &timer)
	}

	return timers, nil
}

func (r *TimerRepository) CompleteTimer(ctx context.Context, id string) error {
	removed, err := r.client.ZRem(ctx, timersKey(), id).Result()
	if err != nil {
		return fmt.Errorf("failed to complete timer %s: %w", id, err)
	}

	if removed == 0 {
		return persistence.ErrTimerNotFound
	}

	if err := r.client.HDel(ctx, timerDataKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to drop timer payload %s: %w", id, err)
	}

	return nil
}

func (r *TimerRepository) CancelTimersForInstance(ctx context.Context, instanceID string) error {
	fields, err := r.client.HGetAll(ctx, timerDataKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to scan timers: %w", err)
	}

	for id, data := range fields {
		var timer models.ScheduledTimer
		if err := json.Unmarshal([]byte(data), &timer); err != nil {
			continue
		}

		if timer.InstanceID != instanceID {
			continue
		}

		pipe := r.client.TxPipeline()
		pipe.ZRem(ctx, timersKey(), id)
		pipe.HDel(ctx, timerDataKey(), id)

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to cancel timer %s: %w", id, err)
		}
	}

	return nil
}

var _ persistence.TimerRepository = (*TimerRepository)(nil)
