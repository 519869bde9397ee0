package file

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
)

// InstanceRepository stores each execution instance as
// <root>/instances/<instance-id>.json. Lookups by contact or status scan
// the directory, which is acceptable for this backend's scale.
type InstanceRepository struct {
	root string
	mu   sync.RWMutex
}

func NewInstanceRepository(root string) *InstanceRepository {
	return &InstanceRepository{root: root}
}

func (r *InstanceRepository) instancesDir() string {
	return filepath.Join(r.root, "instances")
}

func (r *InstanceRepository) instancePath(id string) string {
	return filepath.Join(r.instancesDir(), id+".json")
}

func (r *InstanceRepository) SaveInstance(ctx context.Context, instance *models.ExecutionInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return writeDocument(r.instancePath(instance.ID), instance)
}

func (r *InstanceRepository) InstanceByID(ctx context.Context, id string) (*models.ExecutionInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var instance models.ExecutionInstance

	found, err := readDocument(r.instancePath(id), &instance)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrInstanceNotFound
	}

	return &instance, nil
}

func (r *InstanceRepository) ActiveInstanceByContact(ctx context.Context, contactID string) (*models.ExecutionInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	for _, instance := range instances {
		if instance.ContactID == contactID && !instance.Status.IsTerminal() {
			return instance, nil
		}
	}

	return nil, nil
}

func (r *InstanceRepository) InstancesByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ExecutionInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	var matched []*models.ExecutionInstance

	for _, instance := range instances {
		if instance.Status == status {
			matched = append(matched, instance)
		}
	}

	return matched, nil
}

func (r *InstanceRepository) ArchiveTerminatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instances, err := r.loadAll()
	if err != nil {
		return 0, err
	}

	archived := 0

	for _, instance := range instances {
		if instance.Archived || !instance.Status.IsTerminal() {
			continue
		}

		if instance.UpdatedAt.After(cutoff) {
			continue
		}

		instance.Archived = true
		if err := writeDocument(r.instancePath(instance.ID), instance); err != nil {
			return archived, err
		}

		archived++
	}

	return archived, nil
}

func (r *InstanceRepository) loadAll() ([]*models.ExecutionInstance, error) {
	paths, err := listDocuments(r.instancesDir())
	if err != nil {
		return nil, err
	}

	instances := make([]*models.ExecutionInstance, 0, len(paths))

	for _, path := range paths {
		var instance models.ExecutionInstance

		found, err := readDocument(path, &instance)
		if err != nil {
			return nil, err
		}

		if found {
			instances = append(instances, &instance)
		}
	}

	return instances, nil
}

var _ persistence.InstanceRepository = (*InstanceRepository)(nil)
