package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence"
)

const templateColumns = `id, definition, team_visible, marketplace_visible,
	anonymous, owner_account_id, created_at, updated_at`

type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func scanTemplate(row interface{ Scan(...any) error }) (*models.ActionTemplate, error) {
	var (
		template   models.ActionTemplate
		definition []byte
	)

	err := row.Scan(
		&template.ID, &definition, &template.Visibility.Team,
		&template.Visibility.Marketplace, &template.Anonymous,
		&template.OwnerAccountID, &template.CreatedAt, &template.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(definition, &template.Definition); err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}

	return &template, nil
}

func (r *TemplateRepository) Save(ctx context.Context, template *models.ActionTemplate) error {
	definition, err := json.Marshal(&template.Definition)
	if err != nil {
		return &persistence.TemplateError{Op: "Save", TemplateID: template.ID, Err: err}
	}

	template.UpdatedAt = time.Now().UTC()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO action_templates (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			definition = EXCLUDED.definition,
			team_visible = EXCLUDED.team_visible,
			marketplace_visible = EXCLUDED.marketplace_visible,
			anonymous = EXCLUDED.anonymous,
			updated_at = EXCLUDED.updated_at`,
		template.ID, definition, template.Visibility.Team,
		template.Visibility.Marketplace, template.Anonymous,
		template.OwnerAccountID, template.CreatedAt, template.UpdatedAt,
	)
	if err != nil {
		return &persistence.TemplateError{Op: "Save", TemplateID: template.ID, Err: err}
	}

	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, templateID string) (*models.ActionTemplate, error) {
	query := fmt.Sprintf("SELECT %s FROM action_templates WHERE id = $1", templateColumns)

	template, err := scanTemplate(r.db.QueryRowContext(ctx, query, templateID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.TemplateError{Op: "GetByID", TemplateID: templateID, Err: persistence.ErrTemplateNotFound}
		}

		return nil, &persistence.TemplateError{Op: "GetByID", TemplateID: templateID, Err: err}
	}

	return template, nil
}

func (r *TemplateRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.ActionTemplate, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM action_templates WHERE owner_account_id = $1 AND team_visible ORDER BY created_at DESC",
		templateColumns,
	)

	return r.list(ctx, "ListByAccount", query, accountID)
}

func (r *TemplateRepository) ListMarketplace(ctx context.Context) ([]*models.ActionTemplate, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM action_templates WHERE marketplace_visible ORDER BY created_at DESC",
		templateColumns,
	)

	return r.list(ctx, "ListMarketplace", query)
}

func (r *TemplateRepository) list(ctx context.Context, op, query string, args ...any) ([]*models.ActionTemplate, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &persistence.TemplateError{Op: op, Err: err}
	}
	defer func() { _ = rows.Close() }()

	templates := make([]*models.ActionTemplate, 0)

	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, &persistence.TemplateError{Op: op, Err: err}
		}

		templates = append(templates, template)
	}

	return templates, rows.Err()
}

func (r *TemplateRepository) Delete(ctx context.Context, templateID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM action_templates WHERE id = $1", templateID)
	if err != nil {
		return &persistence.TemplateError{Op: "Delete", TemplateID: templateID, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &persistence.TemplateError{Op: "Delete", TemplateID: templateID, Err: err}
	}

	if affected == 0 {
		return &persistence.TemplateError{Op: "Delete", TemplateID: templateID, Err: persistence.ErrTemplateNotFound}
	}

	return nil
}
