package editmode

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/nexus-mcp/pkg/apierr"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// DefaultTTL bounds how stale a snapshot may be
const DefaultTTL = 30 * time.Second

// Gate decides whether an HTTP verb may run under the current edit mode
type Gate struct {
	store  Store
	shared SharedCache
	ttl    time.Duration
	logger *observability.Logger
	now    func() time.Time

	mu       sync.Mutex
	snapshot *Config
	loadedAt time.Time
}

// NewGate creates a gate; a non-positive ttl uses DefaultTTL
func NewGate(store Store, ttl time.Duration, logger *observability.Logger) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Gate{store: store, ttl: ttl, logger: logger, now: time.Now}
}

// SetSharedCache enables the cross-replica snapshot tier
func (g *Gate) SetSharedCache(c SharedCache) {
	g.shared = c
}

// Snapshot returns the configuration, at most ttl old
func (g *Gate) Snapshot(ctx context.Context) (*Config, error) {
	g.mu.Lock()
	if g.snapshot != nil && g.now().Sub(g.loadedAt) < g.ttl {
		c := *g.snapshot
		g.mu.Unlock()
		return &c, nil
	}
	g.mu.Unlock()

	cfg, err := g.load(ctx)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.snapshot = cfg
	g.loadedAt = g.now()
	g.mu.Unlock()

	c := *cfg
	return &c, nil
}

func (g *Gate) load(ctx context.Context) (*Config, error) {
	if g.shared != nil {
		cfg, ok, err := g.shared.Get(ctx)
		if err != nil {
			g.logger.WithError(err).Warn("shared edit mode snapshot unavailable")
		} else if ok {
			return cfg, nil
		}
	}

	cfg, err := g.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	if g.shared != nil {
		if err := g.shared.Set(ctx, cfg, g.ttl); err != nil {
			g.logger.WithError(err).Warn("failed to publish edit mode snapshot")
		}
	}
	return cfg, nil
}

// Enabled reports whether write methods are currently allowed. Load
// failures count as read-only.
func (g *Gate) Enabled(ctx context.Context) bool {
	cfg, err := g.Snapshot(ctx)
	if err != nil {
		g.logger.WithError(err).Error("failed to read edit mode, treating as read-only")
		return false
	}
	return cfg.Enabled
}

// AuditLoggingEnabled reports whether audit records should be persisted.
// Load failures count as enabled.
func (g *Gate) AuditLoggingEnabled(ctx context.Context) bool {
	cfg, err := g.Snapshot(ctx)
	if err != nil {
		return true
	}
	return cfg.AuditLoggingEnabled
}

// Check returns a PermissionError when method may not run
func (g *Gate) Check(ctx context.Context, method string) error {
	m := strings.ToUpper(method)
	if IsRead(m) {
		return nil
	}
	if !IsWrite(m) {
		g.logger.WithField("method", method).Error("blocked operation with unsupported method")
		return apierr.Permission(apierr.CodeUnsupportedMethod, fmt.Sprintf("Unsupported HTTP method: %s", method))
	}
	if g.Enabled(ctx) {
		return nil
	}
	g.logger.WithField("method", m).Warn("blocked write operation, edit mode not enabled")
	return apierr.Permission(apierr.CodeEditModeRequired, fmt.Sprintf(
		"Edit mode required for %s operations. Current mode: READ-ONLY. "+
			"To enable write operations, an administrator must enable edit mode.", m)).
		WithDetail("edit_mode_required", true)
}

// Set persists edit mode and invalidates every snapshot before returning
func (g *Gate) Set(ctx context.Context, enabled bool) (*Config, error) {
	return g.update(ctx, func(c *Config) { c.Enabled = enabled })
}

// SetAuditLogging persists the audit logging flag
func (g *Gate) SetAuditLogging(ctx context.Context, enabled bool) (*Config, error) {
	return g.update(ctx, func(c *Config) { c.AuditLoggingEnabled = enabled })
}

func (g *Gate) update(ctx context.Context, apply func(*Config)) (*Config, error) {
	cfg, err := g.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	apply(cfg)
	if err := g.store.Save(ctx, cfg); err != nil {
		return nil, err
	}
	g.Invalidate(ctx)

	g.logger.WithFields(map[string]interface{}{
		"edit_mode_enabled":     cfg.Enabled,
		"audit_logging_enabled": cfg.AuditLoggingEnabled,
	}).Info("security config updated")
	return cfg, nil
}

// Invalidate drops the local and shared snapshots
func (g *Gate) Invalidate(ctx context.Context) {
	g.mu.Lock()
	g.snapshot = nil
	g.mu.Unlock()

	if g.shared != nil {
		if err := g.shared.Delete(ctx); err != nil {
			g.logger.WithError(err).Warn("failed to delete shared edit mode snapshot")
		}
	}
}

// Refresh forces a re-read from the store
func (g *Gate) Refresh(ctx context.Context) (*Config, error) {
	g.Invalidate(ctx)
	return g.Snapshot(ctx)
}
