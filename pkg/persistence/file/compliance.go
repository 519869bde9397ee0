package file

import (
	"context"
	"net/url"
	"path/filepath"
	"sync"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
)

// WindowRepository stores each contact's session window as
// <root>/windows/<escaped-contact-id>.json.
type WindowRepository struct {
	root string
	mu   sync.RWMutex
}

func NewWindowRepository(root string) *WindowRepository {
	return &WindowRepository{root: root}
}

func (r *WindowRepository) windowPath(contactID string) string {
	return filepath.Join(r.root, "windows", url.PathEscape(contactID)+".json")
}

func (r *WindowRepository) SaveWindow(ctx context.Context, window *models.ConversationWindow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return writeDocument(r.windowPath(window.ContactID), window)
}

func (r *WindowRepository) Windows(ctx context.Context) ([]*models.ConversationWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths, err := listDocuments(filepath.Join(r.root, "windows"))
	if err != nil {
		return nil, err
	}

	windows := make([]*models.ConversationWindow, 0, len(paths))

	for _, path := range paths {
		var window models.ConversationWindow

		found, err := readDocument(path, &window)
		if err != nil {
			return nil, err
		}

		if found {
			windows = append(windows, &window)
		}
	}

	return windows, nil
}

// HealthRepository stores each template's health as
// <root>/templates/<escaped-template-id>.json.
type HealthRepository struct {
	root string
	mu   sync.RWMutex
}

func NewHealthRepository(root string) *HealthRepository {
	return &HealthRepository{root: root}
}

func (r *HealthRepository) healthPath(templateID string) string {
	return filepath.Join(r.root, "templates", url.PathEscape(templateID)+".json")
}

func (r *HealthRepository) SaveTemplateHealth(ctx context.Context, health *models.TemplateHealth) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return writeDocument(r.healthPath(health.TemplateID), health)
}

func (r *HealthRepository) TemplateHealths(ctx context.Context) ([]*models.TemplateHealth, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths, err := listDocuments(filepath.Join(r.root, "templates"))
	if err != nil {
		return nil, err
	}

	healths := make([]*models.TemplateHealth, 0, len(paths))

	for _, path := range paths {
		var health models.TemplateHealth

		found, err := readDocument(path, &health)
		if err != nil {
			return nil, err
		}

		if found {
			healths = append(healths, &health)
		}
	}

	return healths, nil
}

var (
	_ persistence.WindowRepository = (*WindowRepository)(nil)
	_ persistence.HealthRepository = (*HealthRepository)(nil)
)
