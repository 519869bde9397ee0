package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

// InstanceRepository keeps each instance as a JSON value plus two
// indexes: a per-contact active pointer and per-status id sets.
type InstanceRepository struct {
	client *redis.Client
}

func instanceKey(id string) string {
	return keyPrefix + ":instance:" + id
}

func contactActiveKey(contactID string) string {
	return keyPrefix + ":contact:" + contactID + ":active"
}

func statusIndexKey(status models.ExecutionStatus) string {
	return keyPrefix + ":instances:" + string(status)
}

func allStatuses() []models.ExecutionStatus {
	return []models.ExecutionStatus{
		models.ExecutionStatusRunning,
		models.ExecutionStatusWaitingForInput,
		models.ExecutionStatusWaitingForTimer,
		models.ExecutionStatusWaitingForCall,
		models.ExecutionStatusCompleted,
		models.ExecutionStatusFailed,
		models.ExecutionStatusAborted,
	}
}

func (r *InstanceRepository) SaveInstance(ctx context.Context, instance *models.ExecutionInstance) error {
	data, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("failed to marshal instance %s: %w", instance.ID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, instanceKey(instance.ID), data, 0)

	for _, status := range allStatuses() {
		if status == instance.Status {
			pipe.SAdd(ctx, statusIndexKey(status), instance.ID)
		} else {
			pipe.SRem(ctx, statusIndexKey(status), instance.ID)
		}
	}

	if instance.Status.IsTerminal() {
		pipe.Del(ctx, contactActiveKey(instance.ContactID))
	} else {
		pipe.Set(ctx, contactActiveKey(instance.ContactID), instance.ID, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save instance %s: %w", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) InstanceByID(ctx context.Context, id string) (*models.ExecutionInstance, error) {
	data, err := r.client.Get(ctx, instanceKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.ErrInstanceNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load instance %s: %w", id, err)
	}

	return unmarshalInstance([]byte(data))
}

func (r *InstanceRepository) ActiveInstanceByContact(ctx context.Context, contactID string) (*models.ExecutionInstance, error) {
	id, err := r.client.Get(ctx, contactActiveKey(contactID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to resolve active instance for contact %s: %w", contactID, err)
	}

	instance, err := r.InstanceByID(ctx, id)
	if errors.Is(err, persistence.ErrInstanceNotFound) {
		return nil, nil
	}

	return instance, err
}

func (r *InstanceRepository) InstancesByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ExecutionInstance, error) {
	ids, err := r.client.SMembers(ctx, statusIndexKey(status)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list instances by status: %w", err)
	}

	instances := make([]*models.ExecutionInstance, 0, len(ids))

	for _, id := range ids {
		instance, err := r.InstanceByID(ctx, id)
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		instances = append(instances, instance)
	}

	return instances, nil
}

func (r *InstanceRepository) ArchiveTerminatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	archived := 0

	for _, status := range allStatuses() {
		if !status.IsTerminal() {
			continue
		}

		instances, err := r.InstancesByStatus(ctx, status)
		if err != nil {
			return archived, err
		}

		for _, instance := range instances {
			if instance.Archived || instance.UpdatedAt.After(cutoff) {
				continue
			}

			instance.Archived = true
			if err := r.SaveInstance(ctx, instance); err != nil {
				return archived, err
			}

			archived++
		}
	}

	return archived, nil
}

func unmarshalInstance(data []byte) (*models.ExecutionInstance, error) {
	var instance models.ExecutionInstance
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
	}

	return &instance, nil
}

var _ persistence.InstanceRepository = (*InstanceRepository)(nil)
