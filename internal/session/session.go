// Package session holds the signed-in identity and its bearer credential,
// persists them across restarts, and signs requests to the subscription API.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dukerupert/subtrack/internal/apiclient"
	"github.com/dukerupert/subtrack/internal/model"
	"github.com/dukerupert/subtrack/internal/store"
)

// Durable keys. They are always written and cleared together.
const (
	TokenKey    = "session.token"
	IdentityKey = "session.identity"
)

// ErrRegisteredNotSignedIn reports that the account was created but the
// automatic sign-in that follows registration failed. The account exists;
// the caller should send the user to the login form.
var ErrRegisteredNotSignedIn = errors.New("account created but sign-in failed")

// KeyStore is the durable storage behind a Store.
type KeyStore interface {
	Get(key string) (*store.Entry, error)
	SetAll(values map[string]string) error
	Delete(keys ...string) error
}

// Store is the single source of truth for who is signed in.
type Store struct {
	mu       sync.RWMutex
	keys     KeyStore
	api      *apiclient.Client
	logger   *slog.Logger
	identity *model.Identity
	cred     *model.Credential
	epoch    uint64
}

// New creates a Store and rehydrates it from keys. A missing, partial or
// unreadable persisted session leaves the Store signed out.
//
// api must be an unauthenticated client; the Store signs nothing it sends.
func New(keys KeyStore, api *apiclient.Client, logger *slog.Logger) *Store {
	s := &Store{
		keys:   keys,
		api:    api,
		logger: logger,
	}
	s.rehydrate()
	return s
}

func (s *Store) rehydrate() {
	tok, tokErr := s.keys.Get(TokenKey)
	ident, identErr := s.keys.Get(IdentityKey)
	if tokErr == nil && identErr == nil && tok == nil && ident == nil {
		return
	}

	identity, err := decodePersisted(tok, tokErr, ident, identErr)
	if err != nil {
		s.logger.Warn("discarding persisted session", "error", err)
		if err := s.keys.Delete(TokenKey, IdentityKey); err != nil {
			s.logger.Error("clear persisted session", "error", err)
		}
		return
	}

	cred := model.Credential{
		Token:    tok.Value,
		IssuedAt: issuedAt(tok.Value, tok.UpdatedAt),
	}
	s.identity = &identity
	s.cred = &cred
	s.logger.Debug("session restored", "email", identity.Email)
}

func decodePersisted(tok *store.Entry, tokErr error, ident *store.Entry, identErr error) (model.Identity, error) {
	switch {
	case tokErr != nil:
		return model.Identity{}, fmt.Errorf("read token: %w", tokErr)
	case identErr != nil:
		return model.Identity{}, fmt.Errorf("read identity: %w", identErr)
	case tok == nil || tok.Value == "":
		return model.Identity{}, errors.New("token missing")
	case ident == nil:
		return model.Identity{}, errors.New("identity missing")
	}

	var identity model.Identity
	if err := json.Unmarshal([]byte(ident.Value), &identity); err != nil {
		return model.Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	if identity.Email == "" {
		return model.Identity{}, errors.New("identity has no email")
	}
	return identity, nil
}

// issuedAt reads the iat claim when token is a JWT. The signature is not
// checked; the server remains the only judge of validity.
func issuedAt(token string, fallback time.Time) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.IssuedAt == nil {
		return fallback
	}
	return claims.IssuedAt.Time
}

// CurrentIdentity returns the signed-in identity, if any.
func (s *Store) CurrentIdentity() (model.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return model.Identity{}, false
	}
	return *s.identity, true
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred != nil
}

// Credential returns the current bearer credential, if any.
func (s *Store) Credential() (model.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return model.Credential{}, false
	}
	return *s.cred, true
}

// Epoch advances on every sign-in and sign-out. Work started under one epoch
// must not be applied under another.
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Sign adds the bearer credential to req. Without a credential the header is
// left out entirely.
func (s *Store) Sign(req *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred != nil {
		req.Header.Set("Authorization", "Bearer "+s.cred.Token)
	}
}

// Invalidate clears the session after the server rejected the credential
// carried by req. A rejection of an older credential is ignored so that a
// late 401 cannot sign out a newer session.
func (s *Store) Invalidate(req *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cred == nil {
		return
	}
	if req != nil && req.Header.Get("Authorization") != "Bearer "+s.cred.Token {
		s.logger.Debug("ignoring rejection of a stale credential")
		return
	}
	s.clearLocked("credential rejected")
}

// Logout signs out. It is idempotent and cannot fail; a durable-store error
// is logged and the in-memory session is cleared regardless.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked("logout")
}

func (s *Store) clearLocked(reason string) {
	had := s.cred != nil
	s.identity = nil
	s.cred = nil
	s.epoch++

	if err := s.keys.Delete(TokenKey, IdentityKey); err != nil {
		s.logger.Error("clear persisted session", "reason", reason, "error", err)
	}
	if had {
		s.logger.Info("session cleared", "reason", reason)
	}
}

// establish persists and installs a new session as one step. On a storage
// error nothing changes.
func (s *Store) establish(identity model.Identity, cred model.Credential) error {
	encoded, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.keys.SetAll(map[string]string{
		TokenKey:    cred.Token,
		IdentityKey: string(encoded),
	})
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	s.identity = &identity
	s.cred = &cred
	s.epoch++
	return nil
}
