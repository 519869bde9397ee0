package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
)

// FlowRepository stores each flow version as
// <root>/flows/<flow-id>/v<version>.json.
type FlowRepository struct {
	root string
	mu   sync.RWMutex
}

func NewFlowRepository(root string) *FlowRepository {
	return &FlowRepository{root: root}
}

func (r *FlowRepository) flowDir(id string) string {
	return filepath.Join(r.root, "flows", id)
}

func (r *FlowRepository) versionPath(id string, version int) string {
	return filepath.Join(r.flowDir(id), fmt.Sprintf("v%d.json", version))
}

func (r *FlowRepository) SaveFlow(ctx context.Context, flow *models.FlowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.loadVersion(flow.ID, flow.Version)
	if err != nil {
		return err
	}

	if existing != nil && existing.Status == models.FlowStatusPublished {
		return persistence.ErrVersionConflict
	}

	return writeDocument(r.versionPath(flow.ID, flow.Version), flow)
}

func (r *FlowRepository) FlowByID(ctx context.Context, id string) (*models.FlowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, err := r.loadVersions(id)
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
	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, err := r.loadVersion(id, version)
	if err != nil {
		return nil, err
	}

	if flow == nil {
		return nil, persistence.ErrFlowNotFound
	}

	return flow, nil
}

func (r *FlowRepository) PublishedFlows(ctx context.Context) ([]*models.FlowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flowsDir := filepath.Join(r.root, "flows")

	entries, err := os.ReadDir(flowsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	var published []*models.FlowDefinition

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		versions, err := r.loadVersions(entry.Name())
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
	r.mu.Lock()
	defer r.mu.Unlock()

	dir := r.flowDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return persistence.ErrFlowNotFound
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete flow %s: %w", id, err)
	}

	return nil
}

func (r *FlowRepository) loadVersion(id string, version int) (*models.FlowDefinition, error) {
	var flow models.FlowDefinition

	found, err := readDocument(r.versionPath(id, version), &flow)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}

	return &flow, nil
}

func (r *FlowRepository) loadVersions(id string) ([]*models.FlowDefinition, error) {
	paths, err := listDocuments(r.flowDir(id))
	if err != nil {
		return nil, err
	}

	flows := make([]*models.FlowDefinition, 0, len(paths))

	for _, path := range paths {
		var flow models.FlowDefinition

		found, err := readDocument(path, &flow)
		if err != nil {
			return nil, err
		}

		if found {
			flows = append(flows, &flow)
		}
	}

	return flows, nil
}

var _ persistence.FlowRepository = (*FlowRepository)(nil)
