package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
)

// TimerRepository stores pending timers as <root>/timers/<timer-id>.json.
// Completed timers are deleted rather than flagged.
type TimerRepository struct {
	root string
	mu   sync.RWMutex
}

func NewTimerRepository(root string) *TimerRepository {
	return &TimerRepository{root: root}
}

func (r *TimerRepository) timersDir() string {
	return filepath.Join(r.root, "timers")
}

func (r *TimerRepository) timerPath(id string) string {
	return filepath.Join(r.timersDir(), id+".json")
}

func (r *TimerRepository) ScheduleTimer(ctx context.Context, timer *models.ScheduledTimer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return writeDocument(r.timerPath(timer.ID), timer)
}

func (r *TimerRepository) DueTimers(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledTimer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	timers, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	var due []*models.ScheduledTimer

	for _, timer := range timers {
		if !timer.FireAt.After(now) {
			due = append(due, timer)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].FireAt.Before(due[j].FireAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

func (r *TimerRepository) CompleteTimer(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.timerPath(id))
	if os.IsNotExist(err) {
		return persistence.ErrTimerNotFound
	}

	return err
}

func (r *TimerRepository) CancelTimersForInstance(ctx context.Context, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	timers, err := r.loadAll()
	if err != nil {
		return err
	}

	for _, timer := range timers {
		if timer.InstanceID != instanceID {
			continue
		}

		if err := os.Remove(r.timerPath(timer.ID)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return nil
}

func (r *TimerRepository) loadAll() ([]*models.ScheduledTimer, error) {
	paths, err := listDocuments(r.timersDir())
	if err != nil {
		return nil, err
	}

	timers := make([]*models.ScheduledTimer, 0, len(paths))

	for _, path := range paths {
		var timer models.ScheduledTimer

		found, err := readDocument(path, &timer)
		if err != nil {
			return nil, err
		}

		if found {
			timers = append(timers, &timer)
		}
	}

	return timers, nil
}

var _ persistence.TimerRepository = (*TimerRepository)(nil)
