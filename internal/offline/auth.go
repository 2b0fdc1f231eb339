package offline

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/pders01/storykeep/internal/remote"
	"github.com/pders01/storykeep/internal/storage"
	"github.com/pders01/storykeep/internal/validation"
)

const (
	prefToken = "auth.token"
	prefUser  = "auth.user"
)

// User is the logged-in account as saved in preferences.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type prefTokenSource struct {
	store    *storage.Store
	override string
}

// NewTokenSource serves the bearer token saved by Login. A non-empty
// override, usually from configuration, is returned instead.
func NewTokenSource(store *storage.Store, override string) oauth2.TokenSource {
	return &prefTokenSource{store: store, override: override}
}

func (t *prefTokenSource) Token() (*oauth2.Token, error) {
	if t.override != "" {
		return &oauth2.Token{AccessToken: t.override, TokenType: "Bearer"}, nil
	}
	var token string
	ok, err := t.store.GetPreference(prefToken, &token)
	if err != nil {
		return nil, fmt.Errorf("reading saved token: %w", err)
	}
	if !ok || token == "" {
		return nil, remote.ErrAuthMissing
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

func (m *Manager) Register(ctx context.Context, name, email, password string) error {
	if err := validation.ValidateRegistration(validation.Registration{
		Name:     name,
		Email:    email,
		Password: password,
	}); err != nil {
		return err
	}
	return m.client.Register(ctx, name, email, password)
}

// Login authenticates against the service and saves the session.
func (m *Manager) Login(ctx context.Context, email, password string) (*User, error) {
	if err := validation.ValidateCredentials(validation.Credentials{Email: email, Password: password}); err != nil {
		return nil, err
	}
	res, err := m.client.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	user := &User{ID: res.UserID, Name: res.Name}
	if err := m.store.SetPreference(prefToken, res.Token); err != nil {
		return nil, fmt.Errorf("saving token: %w", err)
	}
	if err := m.store.SetPreference(prefUser, user); err != nil {
		return nil, fmt.Errorf("saving user: %w", err)
	}
	m.log.With("user_id", user.ID).Infof("logged in")
	return user, nil
}

// Logout forgets the saved session. Queued actions stay until the next
// login.
func (m *Manager) Logout() error {
	if err := m.store.DeletePreference(prefToken); err != nil {
		return err
	}
	return m.store.DeletePreference(prefUser)
}

// CurrentUser returns the saved user, or nil.
func (m *Manager) CurrentUser() (*User, error) {
	var user User
	ok, err := m.store.GetPreference(prefUser, &user)
	if err != nil || !ok {
		return nil, err
	}
	return &user, nil
}

func (m *Manager) Tokens() oauth2.TokenSource {
	return m.tokens
}

func (m *Manager) userName() string {
	user, err := m.CurrentUser()
	if err != nil || user == nil {
		return ""
	}
	return user.Name
}
