package authz

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

var (
	// ErrNoCredential is returned when the request carries no credential
	ErrNoCredential = errors.New("missing credential")
	// ErrInvalidCredential is returned when the credential matches nothing
	ErrInvalidCredential = errors.New("invalid credential")
)

// UserSource provides the stored identity data the resolver needs
type UserSource interface {
	GetUserByTokenHash(ctx context.Context, hash string) (*User, error)
	UserGrants(ctx context.Context, userID int64) ([]string, bool, error)
	UserClusterIDs(ctx context.Context, userID int64) ([]int64, error)
}

// ResolverConfig configures credential resolution
type ResolverConfig struct {
	SharedSecret   string
	AllowAnonymous bool
	CacheTTL       time.Duration
	CacheSize      int
}

// Resolver maps bearer credentials to principals
type Resolver struct {
	users  UserSource
	cfg    ResolverConfig
	cache  *expirable.LRU[string, Principal]
	logger *observability.Logger
}

// NewResolver creates a resolver. A non-positive CacheTTL disables caching.
func NewResolver(users UserSource, cfg ResolverConfig, logger *observability.Logger) *Resolver {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	r := &Resolver{users: users, cfg: cfg, logger: logger}
	if cfg.CacheTTL > 0 {
		r.cache = expirable.NewLRU[string, Principal](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return r
}

// HashToken returns the hex SHA-256 of a token as stored in users.api_token_hash
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ParseCredential accepts "Bearer <token>" or a raw token
func ParseCredential(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// Resolve returns the principal for a credential
func (r *Resolver) Resolve(ctx context.Context, credential string) (Principal, error) {
	if credential == "" {
		if r.cfg.SharedSecret == "" && r.cfg.AllowAnonymous {
			return LegacyBypass{}, nil
		}
		return nil, ErrNoCredential
	}

	if r.cfg.SharedSecret != "" &&
		subtle.ConstantTimeCompare([]byte(credential), []byte(r.cfg.SharedSecret)) == 1 {
		return LegacyBypass{}, nil
	}

	if r.users == nil {
		return nil, ErrInvalidCredential
	}

	hash := HashToken(credential)
	if r.cache != nil {
		if p, ok := r.cache.Get(hash); ok {
			return p, nil
		}
	}

	user, err := r.users.GetUserByTokenHash(ctx, hash)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential: %w", err)
	}

	var p Principal
	if user.IsSuperuser {
		p = Superuser{ID: user.ID, Name: user.Username}
	} else {
		operations, editMode, err := r.users.UserGrants(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve credential: %w", err)
		}
		clusters, err := r.users.UserClusterIDs(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve credential: %w", err)
		}
		p = NewRoleBasedUser(user.ID, user.Username, operations, editMode, clusters)
	}

	if r.cache != nil {
		r.cache.Add(hash, p)
	}

	r.logger.WithFields(map[string]interface{}{
		"user_id": user.ID,
		"kind":    p.Kind(),
	}).Debug("credential resolved")

	return p, nil
}

// Invalidate drops cached principals for a user
func (r *Resolver) Invalidate(userID int64) {
	if r.cache == nil {
		return
	}
	for _, key := range r.cache.Keys() {
		if p, ok := r.cache.Peek(key); ok && p.UserID() == userID {
			r.cache.Remove(key)
		}
	}
}

// Purge drops every cached principal
func (r *Resolver) Purge() {
	if r.cache != nil {
		r.cache.Purge()
	}
}
