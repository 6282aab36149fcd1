package grouping

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresRepository stores groups in the resource_groups table
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates the repository, creating its table if missing
func NewPostgresRepository(db *sql.DB) (*PostgresRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	r := &PostgresRepository{db: db}
	if err := r.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure resource_groups table: %w", err)
	}
	return r, nil
}

func (r *PostgresRepository) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS resource_groups (
		id BIGSERIAL PRIMARY KEY,
		group_key VARCHAR(100) NOT NULL UNIQUE,
		namespace VARCHAR(50) NOT NULL,
		resource VARCHAR(100) NOT NULL,
		display_name VARCHAR(200),
		description TEXT,
		operations JSONB NOT NULL DEFAULT '[]',
		is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		is_custom BOOLEAN NOT NULL DEFAULT FALSE,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_resource_groups_namespace ON resource_groups(namespace);
	`
	_, err := r.db.Exec(query)
	return err
}

const groupColumns = `id, group_key, namespace, resource, display_name, description,
	operations, is_enabled, is_custom, sort_order, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGroup(row rowScanner) (*Group, error) {
	var (
		g           Group
		displayName sql.NullString
		description sql.NullString
		operations  []byte
	)
	err := row.Scan(&g.ID, &g.Key, &g.Namespace, &g.Resource, &displayName, &description,
		&operations, &g.Enabled, &g.IsCustom, &g.SortOrder, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	g.DisplayName = displayName.String
	g.Description = description.String
	if len(operations) > 0 {
		if err := json.Unmarshal(operations, &g.OperationIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal operations for group %s: %w", g.Key, err)
		}
	}
	return &g, nil
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...interface{}) ([]*Group, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resource groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// List returns all groups ordered by sort order then key
func (r *PostgresRepository) List(ctx context.Context) ([]*Group, error) {
	return r.query(ctx, `SELECT `+groupColumns+` FROM resource_groups ORDER BY sort_order, group_key`)
}

// ListByNamespace returns the namespace's groups
func (r *PostgresRepository) ListByNamespace(ctx context.Context, namespace string) ([]*Group, error) {
	return r.query(ctx, `SELECT `+groupColumns+` FROM resource_groups WHERE namespace = $1 ORDER BY sort_order, group_key`, namespace)
}

// Get returns a group by id
func (r *PostgresRepository) Get(ctx context.Context, id int64) (*Group, error) {
	g, err := scanGroup(r.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM resource_groups WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource group: %w", err)
	}
	return g, nil
}

// GetByKey returns a group by key
func (r *PostgresRepository) GetByKey(ctx context.Context, key string) (*Group, error) {
	g, err := scanGroup(r.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM resource_groups WHERE group_key = $1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource group: %w", err)
	}
	return g, nil
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func insertGroup(ctx context.Context, ex execer, g *Group) error {
	operations, err := json.Marshal(nonNil(g.OperationIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal operations: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO resource_groups (
			group_key, namespace, resource, display_name, description,
			operations, is_enabled, is_custom, sort_order, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING id
	`
	err = ex.QueryRowContext(ctx, query,
		g.Key, g.Namespace, g.Resource, g.DisplayName, g.Description,
		operations, g.Enabled, g.IsCustom, g.SortOrder, now,
	).Scan(&g.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrKeyExists
		}
		return fmt.Errorf("failed to insert resource group: %w", err)
	}
	g.CreatedAt = now
	g.UpdatedAt = now
	return nil
}

// Create inserts a group and assigns its ID
func (r *PostgresRepository) Create(ctx context.Context, g *Group) error {
	return insertGroup(ctx, r.db, g)
}

// Update writes mutable fields of a group
func (r *PostgresRepository) Update(ctx context.Context, g *Group) error {
	operations, err := json.Marshal(nonNil(g.OperationIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal operations: %w", err)
	}

	g.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE resource_groups
		SET display_name = $1, description = $2, operations = $3,
			is_enabled = $4, sort_order = $5, updated_at = $6
		WHERE id = $7
	`
	result, err := r.db.ExecContext(ctx, query,
		g.DisplayName, g.Description, operations, g.Enabled, g.SortOrder, g.UpdatedAt, g.ID)
	if err != nil {
		return fmt.Errorf("failed to update resource group: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a group
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM resource_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete resource group: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceGenerated swaps the namespace's generated groups in one transaction
func (r *PostgresRepository) ReplaceGenerated(ctx context.Context, namespace string, groups []*Group) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM resource_groups WHERE namespace = $1 AND is_custom = FALSE`, namespace); err != nil {
		return fmt.Errorf("failed to delete generated groups: %w", err)
	}

	for _, g := range groups {
		if err := insertGroup(ctx, tx, g); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit generated groups: %w", err)
	}
	return nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
