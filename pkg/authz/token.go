package authz

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenPrefix marks issued user API tokens
const TokenPrefix = "ndmcp_"

// TokenStore persists token hashes
type TokenStore interface {
	GetUser(ctx context.Context, userID int64) (*User, error)
	SetUserToken(ctx context.Context, userID int64, tokenHash string) error
}

// TokenGenerator issues user API tokens
type TokenGenerator struct {
	store    TokenStore
	resolver *Resolver
}

// NewTokenGenerator creates a generator; resolver may be nil
func NewTokenGenerator(store TokenStore, resolver *Resolver) *TokenGenerator {
	return &TokenGenerator{store: store, resolver: resolver}
}

// GenerateToken returns a new random token
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue replaces the user's token and returns the plaintext, which is never stored
func (g *TokenGenerator) Issue(ctx context.Context, userID int64) (string, error) {
	if _, err := g.store.GetUser(ctx, userID); err != nil {
		return "", err
	}

	token, err := GenerateToken()
	if err != nil {
		return "", err
	}
	if err := g.store.SetUserToken(ctx, userID, HashToken(token)); err != nil {
		return "", err
	}
	if g.resolver != nil {
		g.resolver.Invalidate(userID)
	}
	return token, nil
}
