// Package file provides file-based persistence for flows, templates and
// tasks. Each aggregate is one JSON document; good for development and tests,
// not for concurrent multi-process use.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/flowdeck/flowdeck/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root         string
	flowRepo     *FlowRepository
	templateRepo *TemplateRepository
	taskRepo     *TaskRepository
}

// NewPersistence creates file persistence rooted at the given directory.
// Accepts a plain path or a file:// URL.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		flowRepo:     NewFlowRepository(cleanRoot),
		templateRepo: NewTemplateRepository(cleanRoot),
		taskRepo:     NewTaskRepository(cleanRoot),
	}
}

func (p *Persistence) FlowRepository() persistence.FlowRepository {
	return p.flowRepo
}

func (p *Persistence) TemplateRepository() persistence.TemplateRepository {
	return p.templateRepo
}

func (p *Persistence) TaskRepository() persistence.TaskRepository {
	return p.taskRepo
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close is a no-op for file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}
