package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence"
)

// TemplateRepository stores one JSON document per action template under
// <root>/templates/<template_id>.json.
type TemplateRepository struct {
	root string
}

func NewTemplateRepository(root string) *TemplateRepository {
	return &TemplateRepository{root: root}
}

func (r *TemplateRepository) dir() string {
	return filepath.Join(r.root, "templates")
}

func (r *TemplateRepository) path(templateID string) string {
	return filepath.Join(r.dir(), templateID+".json")
}

func (r *TemplateRepository) Save(ctx context.Context, template *models.ActionTemplate) error {
	if err := os.MkdirAll(r.dir(), 0o755); err != nil {
		return &persistence.TemplateError{Op: "Save", TemplateID: template.ID, Err: err}
	}

	data, err := json.MarshalIndent(template, "", "  ")
	if err != nil {
		return &persistence.TemplateError{Op: "Save", TemplateID: template.ID, Err: err}
	}

	if err := os.WriteFile(r.path(template.ID), data, 0o644); err != nil {
		return &persistence.TemplateError{Op: "Save", TemplateID: template.ID, Err: err}
	}

	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, templateID string) (*models.ActionTemplate, error) {
	data, err := os.ReadFile(r.path(templateID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &persistence.TemplateError{Op: "GetByID", TemplateID: templateID, Err: persistence.ErrTemplateNotFound}
		}

		return nil, &persistence.TemplateError{Op: "GetByID", TemplateID: templateID, Err: err}
	}

	var template models.ActionTemplate
	if err := json.Unmarshal(data, &template); err != nil {
		return nil, &persistence.TemplateError{Op: "GetByID", TemplateID: templateID, Err: err}
	}

	return &template, nil
}

func (r *TemplateRepository) loadAll() ([]*models.ActionTemplate, error) {
	if _, err := os.Stat(r.dir()); os.IsNotExist(err) {
		return []*models.ActionTemplate{}, nil
	}

	root := os.DirFS(r.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list template files: %w", err)
	}

	templates := make([]*models.ActionTemplate, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		data, err := fs.ReadFile(root, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read template file %s: %w", name, err)
		}

		var template models.ActionTemplate
		if err := json.Unmarshal(data, &template); err != nil {
			return nil, fmt.Errorf("failed to decode template file %s: %w", name, err)
		}

		templates = append(templates, &template)
	}

	sort.SliceStable(templates, func(i, j int) bool {
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})

	return templates, nil
}

func (r *TemplateRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.ActionTemplate, error) {
	templates, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	matched := make([]*models.ActionTemplate, 0)

	for _, template := range templates {
		if template.Visibility.Team && template.OwnerAccountID == accountID {
			matched = append(matched, template)
		}
	}

	return matched, nil
}

func (r *TemplateRepository) ListMarketplace(ctx context.Context) ([]*models.ActionTemplate, error) {
	templates, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	matched := make([]*models.ActionTemplate, 0)

	for _, template := range templates {
		if template.Visibility.Marketplace {
			matched = append(matched, template)
		}
	}

	return matched, nil
}

func (r *TemplateRepository) Delete(ctx context.Context, templateID string) error {
	err := os.Remove(r.path(templateID))
	if err != nil {
		if os.IsNotExist(err) {
			return &persistence.TemplateError{Op: "Delete", TemplateID: templateID, Err: persistence.ErrTemplateNotFound}
		}

		return &persistence.TemplateError{Op: "Delete", TemplateID: templateID, Err: err}
	}

	return nil
}
