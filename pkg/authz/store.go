package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUserNotFound is returned when no active user matches
	ErrUserNotFound = errors.New("user not found")
	// ErrClusterNotFound is returned when no active cluster matches
	ErrClusterNotFound = errors.New("cluster not found")
)

// Store reads users, role grants and clusters
type Store struct {
	db *sql.DB
}

// NewStore creates a new authz store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetUserByTokenHash returns the active user whose API token hashes to hash
func (s *Store) GetUserByTokenHash(ctx context.Context, hash string) (*User, error) {
	query := `
		SELECT id, username, COALESCE(email, ''), is_active, is_superuser
		FROM users
		WHERE api_token_hash = $1 AND is_active = $2
	`
	var u User
	err := s.db.QueryRowContext(ctx, query, hash, true).Scan(
		&u.ID, &u.Username, &u.Email, &u.IsActive, &u.IsSuperuser,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by token: %w", err)
	}
	return &u, nil
}

// GetUser returns a user by id
func (s *Store) GetUser(ctx context.Context, userID int64) (*User, error) {
	query := `
		SELECT id, username, COALESCE(email, ''), is_active, is_superuser
		FROM users
		WHERE id = $1
	`
	var u User
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&u.ID, &u.Username, &u.Email, &u.IsActive, &u.IsSuperuser,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// UserGrants returns the union of operation names across the user's roles and
// whether any of those roles enables edit mode
func (s *Store) UserGrants(ctx context.Context, userID int64) ([]string, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ro.operation_name
		FROM role_operations ro
		JOIN user_roles ur ON ur.role_id = ro.role_id
		WHERE ur.user_id = $1
		ORDER BY ro.operation_name
	`, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get role operations: %w", err)
	}
	defer rows.Close()

	var operations []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, false, fmt.Errorf("failed to scan role operation: %w", err)
		}
		operations = append(operations, name)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	var editRoles int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1 AND r.edit_mode_enabled = $2
	`, userID, true).Scan(&editRoles)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get role edit mode: %w", err)
	}

	return operations, editRoles > 0, nil
}

// UserClusterIDs returns the clusters explicitly assigned to the user
func (s *Store) UserClusterIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cluster_id FROM user_clusters WHERE user_id = $1 ORDER BY cluster_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user clusters: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan cluster id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const clusterColumns = `id, name, url, username, password, verify_ssl, is_active`

func scanCluster(row *sql.Row) (*Cluster, error) {
	var c Cluster
	err := row.Scan(&c.ID, &c.Name, &c.URL, &c.Username, &c.Password, &c.VerifySSL, &c.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClusterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster: %w", err)
	}
	return &c, nil
}

// ClusterByID returns an active cluster by id
func (s *Store) ClusterByID(ctx context.Context, id int64) (*Cluster, error) {
	return scanCluster(s.db.QueryRowContext(ctx,
		`SELECT `+clusterColumns+` FROM clusters WHERE id = $1 AND is_active = $2`, id, true))
}

// ClusterByName returns an active cluster by name
func (s *Store) ClusterByName(ctx context.Context, name string) (*Cluster, error) {
	return scanCluster(s.db.QueryRowContext(ctx,
		`SELECT `+clusterColumns+` FROM clusters WHERE name = $1 AND is_active = $2`, name, true))
}

// SetUserToken stores the hash of a newly issued token for the user
func (s *Store) SetUserToken(ctx context.Context, userID int64, tokenHash string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET api_token_hash = $1, updated_at = $2 WHERE id = $3`,
		tokenHash, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to set user token: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}
