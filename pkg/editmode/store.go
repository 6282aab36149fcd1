package editmode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Config is the persisted security configuration
type Config struct {
	Enabled             bool      `json:"edit_mode_enabled"`
	AuditLoggingEnabled bool      `json:"audit_logging_enabled"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// DefaultConfig is used until a row is written: read-only, audit on
func DefaultConfig() *Config {
	return &Config{Enabled: false, AuditLoggingEnabled: true}
}

// Store persists the security configuration
type Store interface {
	Load(ctx context.Context) (*Config, error)
	Save(ctx context.Context, cfg *Config) error
}

// PostgresStore keeps the configuration in security_config
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the store, creating its table if missing
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	s := &PostgresStore{db: db}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure security_config table: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) ensureTable() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS security_config (
		id INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		edit_mode_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		audit_logging_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`)
	return err
}

// Load reads the configuration row, falling back to DefaultConfig
func (s *PostgresStore) Load(ctx context.Context) (*Config, error) {
	var cfg Config
	err := s.db.QueryRowContext(ctx,
		`SELECT edit_mode_enabled, audit_logging_enabled, updated_at FROM security_config WHERE id = 1`,
	).Scan(&cfg.Enabled, &cfg.AuditLoggingEnabled, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load security config: %w", err)
	}
	return &cfg, nil
}

// Save upserts the configuration row
func (s *PostgresStore) Save(ctx context.Context, cfg *Config) error {
	cfg.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO security_config (id, edit_mode_enabled, audit_logging_enabled, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET edit_mode_enabled = EXCLUDED.edit_mode_enabled,
			audit_logging_enabled = EXCLUDED.audit_logging_enabled,
			updated_at = EXCLUDED.updated_at
	`, cfg.Enabled, cfg.AuditLoggingEnabled, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save security config: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu    sync.Mutex
	cfg   *Config
	loads int
}

// NewMemoryStore creates a store holding cfg, or DefaultConfig when nil
func NewMemoryStore(cfg *Config) *MemoryStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &MemoryStore{cfg: cfg}
}

// Load returns a copy of the stored configuration
func (m *MemoryStore) Load(ctx context.Context) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	c := *m.cfg
	return &c, nil
}

// Save stores a copy of cfg
func (m *MemoryStore) Save(ctx context.Context, cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg.UpdatedAt = time.Now().UTC()
	c := *cfg
	m.cfg = &c
	return nil
}

// Loads returns how many times Load was called
func (m *MemoryStore) Loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}
