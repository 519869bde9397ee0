package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
)

// TimerRepository stores pending timers; completed timers are deleted.
type TimerRepository struct {
	db *sql.DB
}

func (r *TimerRepository) ScheduleTimer(ctx context.Context, timer *models.ScheduledTimer) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO timers (id, instance_id, node_id, fire_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET fire_at = $4
	`, timer.ID, timer.InstanceID, timer.NodeID, timer.FireAt, timer.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to schedule timer %s: %w", timer.ID, err)
	}

	return nil
}

func (r *TimerRepository) DueTimers(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledTimer, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, instance_id, node_id, fire_at, created_at
		FROM timers
		WHERE fire_at <= $1
		ORDER BY fire_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due timers: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var timers []*models.ScheduledTimer

	for rows.Next() {
		var timer models.ScheduledTimer
		if err := rows.Scan(&timer.ID, &timer.InstanceID, &timer.NodeID, &timer.FireAt, &timer.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan timer: %w", err)
		}

		timers = append(timers, &timer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating timers: %w", err)
	}

	return timers, nil
}

func (r *TimerRepository) CompleteTimer(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM timers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to complete timer %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check timer delete result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrTimerNotFound
	}

	return nil
}

func (r *TimerRepository) CancelTimersForInstance(ctx context.Context, instanceID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM timers WHERE instance_id = $1", instanceID)
	if err != nil {
		return fmt.Errorf("failed to cancel timers for instance %s: %w", instanceID, err)
	}

	return nil
}

var _ persistence.TimerRepository = (*TimerRepository)(nil)
