// Package file provides a file-based persistence implementation suited to
// local development and tests. Every record is one JSON document under the
// root directory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowzap/flowzap/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root         string
	flowRepo     *FlowRepository
	instanceRepo *InstanceRepository
	windowRepo   *WindowRepository
	healthRepo   *HealthRepository
	timerRepo    *TimerRepository
}

func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		flowRepo:     NewFlowRepository(cleanRoot),
		instanceRepo: NewInstanceRepository(cleanRoot),
		windowRepo:   NewWindowRepository(cleanRoot),
		healthRepo:   NewHealthRepository(cleanRoot),
		timerRepo:    NewTimerRepository(cleanRoot),
	}
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

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// writeDocument marshals the value and writes it atomically via a rename.
func writeDocument(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}

	return nil
}

func readDocument(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to read document: %w", err)
	}

	if err := json.Unmarshal(data, value); err != nil {
		return false, fmt.Errorf("failed to unmarshal document %s: %w", path, err)
	}

	return true, nil
}

func listDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list directory %s: %w", dir, err)
	}

	var paths []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	return paths, nil
}
