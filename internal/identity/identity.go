// Package identity resolves connection tokens to participants.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aaronwang/live-auction/internal/models"
)

// ErrInvalidToken is returned when no resolver recognises a token
var ErrInvalidToken = errors.New("invalid token")

// Identity is who is behind a connection
type Identity struct {
	ParticipantRef string
	Role           models.Role
}

// Resolver maps an opaque token to an identity
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

// Static resolves from a fixed token table, for development and tests
type Static struct {
	tokens map[string]Identity
}

// ParseStatic builds a Static resolver from "token=participant:role" entries
func ParseStatic(entries []string) (*Static, error) {
	s := &Static{tokens: make(map[string]Identity, len(entries))}
	for _, entry := range entries {
		token, rest, ok := strings.Cut(entry, "=")
		if !ok || token == "" {
			return nil, fmt.Errorf("malformed token entry %q", entry)
		}
		participant, role, ok := strings.Cut(rest, ":")
		if !ok || participant == "" {
			return nil, fmt.Errorf("malformed token entry %q", entry)
		}
		r := models.Role(role)
		if !r.Valid() {
			return nil, fmt.Errorf("token %q: unknown role %q", token, role)
		}
		s.tokens[token] = Identity{ParticipantRef: participant, Role: r}
	}
	return s, nil
}

// Resolve implements Resolver
func (s *Static) Resolve(_ context.Context, token string) (*Identity, error) {
	id, ok := s.tokens[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &id, nil
}

// Chain tries each resolver in order and returns the first match.
// Errors other than ErrInvalidToken stop the chain.
type Chain []Resolver

// Resolve implements Resolver
func (c Chain) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	for _, r := range c {
		id, err := r.Resolve(ctx, token)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrInvalidToken) {
			return nil, err
		}
	}
	return nil, ErrInvalidToken
}
