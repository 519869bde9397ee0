package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

// FlowRepository keeps each flow as a hash of version field to JSON
// document, plus a set of known flow ids.
type FlowRepository struct {
	client *redis.Client
}

func flowKey(id string) string {
	return keyPrefix + ":flow:" + id
}

func flowIndexKey() string {
	return keyPrefix + ":flows"
}

func versionField(version int) string {
	return "v" + strconv.Itoa(version)
}

func (r *FlowRepository) SaveFlow(ctx context.Context, flow *models.FlowDefinition) error {
	existing, err := r.client.HGet(ctx, flowKey(flow.ID), versionField(flow.Version)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to check existing flow version: %w", err)
	}

	if err == nil {
		var stored models.FlowDefinition
		if err := json.Unmarshal([]byte(existing), &stored); err == nil &&
			stored.Status == models.FlowStatusPublished {
			return persistence.ErrVersionConflict
		}
	}

	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow %s: %w", flow.ID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, flowKey(flow.ID), versionField(flow.Version), data)
	pipe.SAdd(ctx, flowIndexKey(), flow.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save flow %s: %w", flow.ID, err)
	}

	return nil
}

func (r *FlowRepository) FlowByID(ctx context.Context, id string) (*models.FlowDefinition, error) {
	versions, err := r.versions(ctx, id)
	if err != nil {
		return nil, err
	}

	if len(versions) == 0 {
		return nil, persistence.ErrFlowNotFound
	}

	latest := versions[0]
	for _, v := range versions[1:] {
		if v.Version > latest.Version {
			latest = v
		}
	}

	return latest, nil
}

func (r *FlowRepository) FlowByVersion(ctx context.Context, id string, version int) (*models.FlowDefinition, error) {
	data, err := r.client.HGet(ctx, flowKey(id), versionField(version)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.ErrFlowNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load flow %s v%d: %w", id, version, err)
	}

	var flow models.FlowDefinition
	if err := json.Unmarshal([]byte(data), &flow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow %s: %w", id, err)
	}

	return &flow, nil
}

func (r *FlowRepository) PublishedFlows(ctx context.Context) ([]*models.FlowDefinition, error) {
	ids, err := r.client.SMembers(ctx, flowIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	var published []*models.FlowDefinition

	for _, id := range ids {
		versions, err := r.versions(ctx, id)
		if err != nil {
			return nil, err
		}

		for _, v := range versions {
			if v.Status == models.FlowStatusPublished {
				published = append(published, v)
			}
		}
	}

	return published, nil
}

func (r *FlowRepository) DeleteFlow(ctx context.Context, id string) error {
	deleted, err := r.client.Del(ctx, flowKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete flow %s: %w", id, err)
	}

	if deleted == 0 {
		return persistence.ErrFlowNotFound
	}

	if err := r.client.SRem(ctx, flowIndexKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to deindex flow %s: %w", id, err)
	}

	return nil
}

func (r *FlowRepository) versions(ctx context.Context, id string) ([]*models.FlowDefinition, error) {
	fields, err := r.client.HGetAll(ctx, flowKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load flow versions for %s: %w", id, err)
	}

	flows := make([]*models.FlowDefinition, 0, len(fields))

	for _, data := range fields {
		var flow models.FlowDefinition
		if err := json.Unmarshal([]byte(data), &flow); err != nil {
			return nil, fmt.Errorf("failed to unmarshal flow %s: %w", id, err)
		}

		flows = append(flows, &flow)
	}

	return flows, nil
}

var _ persistence.FlowRepository = (*FlowRepository)(nil)
