package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/subtrack/internal/apiclient"
	"github.com/dukerupert/subtrack/internal/model"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the login payload. Only token and email are guaranteed;
// the rest is used when the server sends it.
type loginResponse struct {
	Token       string `json:"token"`
	Email       string `json:"email"`
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
	UserName    string `json:"username"`
	Role        string `json:"role"`
}

func (r loginResponse) identity(fallbackEmail string) model.Identity {
	id := model.Identity{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		Email:       r.Email,
		Role:        r.Role,
	}
	if id.DisplayName == "" {
		id.DisplayName = r.UserName
	}
	if id.Email == "" {
		id.Email = fallbackEmail
	}
	if id.Role == "" {
		id.Role = model.DefaultRole
	}
	return id
}

// Login exchanges email and password for a credential. On success the
// credential and identity are stored together and the identity is returned.
// On any failure the previous session, if there was one, is left as it was.
//
// A refused login matches apiclient.ErrInvalidCredentials.
func (s *Store) Login(ctx context.Context, email, password string) (model.Identity, error) {
	email = strings.TrimSpace(email)

	var resp loginResponse
	err := s.api.Do(ctx, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		if errors.Is(err, apiclient.ErrUnauthenticated) {
			err = apiclient.Reclassify(err, apiclient.ErrInvalidCredentials)
		}
		return model.Identity{}, fmt.Errorf("login: %w", err)
	}
	if resp.Token == "" {
		return model.Identity{}, fmt.Errorf("login: %w", &apiclient.Error{
			Kind: apiclient.ErrTransient,
			Err:  errors.New("response has no token"),
		})
	}

	identity := resp.identity(email)
	cred := model.Credential{
		Token:    resp.Token,
		IssuedAt: issuedAt(resp.Token, time.Now().UTC()),
	}
	if err := s.establish(identity, cred); err != nil {
		return model.Identity{}, fmt.Errorf("login: %w", err)
	}

	s.logger.Info("logged in", "email", identity.Email)
	return identity, nil
}

// Register creates an account and then signs in with the same credentials.
//
// If the account is created but sign-in fails, sign-in is retried once when
// the failure was transient. If it still fails the returned error matches
// both ErrRegisteredNotSignedIn and the sign-in error.
func (s *Store) Register(ctx context.Context, profile model.Profile) (model.Identity, error) {
	profile.Email = strings.TrimSpace(profile.Email)
	profile.UserName = strings.TrimSpace(profile.UserName)

	if err := s.api.Do(ctx, http.MethodPost, "/auth/register", profile, nil); err != nil {
		return model.Identity{}, fmt.Errorf("register: %w", err)
	}
	s.logger.Info("account created", "email", profile.Email)

	identity, err := s.Login(ctx, profile.Email, profile.Password)
	if err != nil && errors.Is(err, apiclient.ErrTransient) {
		s.logger.Warn("sign-in after registration failed, retrying", "error", err)
		identity, err = s.Login(ctx, profile.Email, profile.Password)
	}
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %w", ErrRegisteredNotSignedIn, err)
	}
	return identity, nil
}
