package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/elimuconnect/elimu/core/user"
)

// Identity is the locally cached profile of the signed-in user.
// Role holds the canonical (unprefixed) form.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session owns the persisted token and identity. All methods are safe for
// concurrent use.
type Session struct {
	mu       sync.RWMutex
	storage  Storage
	token    string
	identity *Identity
}

func NewSession(storage Storage) *Session {
	return &Session{storage: storage}
}

// Set stores the session and persists it. The identity's role is normalized
// before it is kept.
func (s *Session) Set(token string, ident Identity) error {
	ident.Role = user.NormalizeRole(ident.Role)

	data, err := json.Marshal(ident)
	if err != nil {
		return err
	}
	if err := s.storage.Set(tokenKey, token); err != nil {
		return err
	}
	if err := s.storage.Set(userKey, string(data)); err != nil {
		return err
	}

	s.mu.Lock()
	s.token = token
	s.identity = &ident
	s.mu.Unlock()
	return nil
}

// Clear drops the session from memory and storage.
func (s *Session) Clear() {
	s.storage.Delete(tokenKey)
	s.storage.Delete(userKey)

	s.mu.Lock()
	s.token = ""
	s.identity = nil
	s.mu.Unlock()
}

// Restore loads a previously persisted session. Anything malformed or expired
// clears the stored state and leaves the session unauthenticated; corrupted
// storage is never an error, just a signed-out state.
func (s *Session) Restore() bool {
	token, ok := s.storage.Get(tokenKey)
	if !ok || token == "" {
		s.Clear()
		return false
	}
	userJSON, ok := s.storage.Get(userKey)
	if !ok {
		s.Clear()
		return false
	}

	var ident Identity
	if err := json.Unmarshal([]byte(userJSON), &ident); err != nil || ident.ID == "" {
		s.Clear()
		return false
	}
	ident.Role = user.NormalizeRole(ident.Role)

	if expired(token) {
		s.Clear()
		return false
	}

	s.mu.Lock()
	s.token = token
	s.identity = &ident
	s.mu.Unlock()
	return true
}

func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.identity != nil
}

// Identity returns the cached identity; ok is false when signed out.
func (s *Session) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// expired decodes the token claims without verifying the signature; the
// server remains the authority, this only avoids restoring a dead session.
func expired(token string) bool {
	claims := new(jwt.StandardClaims)
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return true
	}
	return claims.ExpiresAt != 0 && time.Unix(claims.ExpiresAt, 0).Before(time.Now())
}
