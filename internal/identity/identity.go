package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pawnest/companion/internal/credential"
	"github.com/pawnest/companion/internal/model"
	"github.com/pawnest/companion/internal/store"
)

// Provider resolves the current user and their API credential. The
// feed never treats a missing identity or token as an error: no user
// means the visibility filter stays open and remote sync is skipped.
type Provider interface {
	// CurrentUser returns the signed-in user, or nil when signed out.
	CurrentUser() *model.User

	// Token returns the API bearer token for the given user id. It
	// fails closed: no stored credential means an error, never a
	// default token.
	Token(userID string) (string, error)
}

// tokenKey returns the keyring key holding a user's API token.
func tokenKey(userID string) string {
	return "api-token:" + userID
}

// Session is a Provider backed by the durable store (signed-in user)
// and the system keyring (API token).
type Session struct {
	kv store.KV
}

// NewSession creates a session provider on top of the durable store.
func NewSession(kv store.KV) *Session {
	return &Session{kv: kv}
}

// CurrentUser loads the signed-in user from the durable store.
// Returns nil when no session exists or the record is unreadable.
func (s *Session) CurrentUser() *model.User {
	raw, ok, err := s.kv.Get(context.Background(), store.KeySession)
	if err != nil || !ok {
		return nil
	}

	var user model.User
	if err := json.Unmarshal(raw, &user); err != nil || user.ID == "" {
		return nil
	}
	return &user
}

// Token retrieves the API token for userID from the system keyring.
func (s *Session) Token(userID string) (string, error) {
	token, err := credential.Get(tokenKey(userID))
	if err != nil {
		return "", fmt.Errorf("loading token for user %s: %w", userID, err)
	}
	if token == "" {
		return "", fmt.Errorf("no token stored for user %s", userID)
	}
	return token, nil
}

// SignIn persists the user as the active session and stores their API
// token in the keyring.
func (s *Session) SignIn(ctx context.Context, user model.User, token string) error {
	if user.ID == "" {
		return fmt.Errorf("signing in: user id is required")
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshaling session user: %w", err)
	}
	if err := s.kv.Set(ctx, store.KeySession, raw); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}

	if token != "" {
		if err := credential.Set(tokenKey(user.ID), token); err != nil {
			return fmt.Errorf("storing token: %w", err)
		}
	}

	return nil
}

// SignOut removes the active session and the user's stored token.
func (s *Session) SignOut(ctx context.Context) error {
	user := s.CurrentUser()

	if err := s.kv.Delete(ctx, store.KeySession); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}

	if user != nil {
		// Best effort; an already-absent credential is fine.
		_ = credential.Delete(tokenKey(user.ID))
	}

	return nil
}
