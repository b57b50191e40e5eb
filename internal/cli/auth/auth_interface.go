package auth

import (
	"errors"
	"fmt"
)

// ErrNoToken is returned by LoadToken when no token is stored for a server
var ErrNoToken = errors.New("not authenticated. Please run 'consultadmin login' first")

// TokenStore defines the interface for token storage operations
// This allows us to mock the keyring in tests
type TokenStore interface {
	SaveToken(server, token string) error
	LoadToken(server string) (string, error)
	DeleteToken(server string) error
}

// defaultTokenStore implements TokenStore using the OS keyring
type defaultTokenStore struct{}

var Default TokenStore = &defaultTokenStore{}

func (d *defaultTokenStore) SaveToken(server, token string) error {
	return SaveToken(server, token)
}

func (d *defaultTokenStore) LoadToken(server string) (string, error) {
	return LoadToken(server)
}

func (d *defaultTokenStore) DeleteToken(server string) error {
	return DeleteToken(server)
}

// ServerToken binds a TokenStore to a single server. It is the durable
// storage the session controller reads at boot and writes on login/logout.
type ServerToken struct {
	store  TokenStore
	server string
}

// ForServer returns durable token storage scoped to one server
func ForServer(store TokenStore, server string) *ServerToken {
	return &ServerToken{store: store, server: server}
}

// Load returns the stored token, or "" when none is stored
func (s *ServerToken) Load() (string, error) {
	token, err := s.store.LoadToken(s.server)
	if err != nil {
		if errors.Is(err, ErrNoToken) {
			return "", nil
		}
		return "", fmt.Errorf("load token for %s: %w", s.server, err)
	}
	return token, nil
}

// Save persists token for the server
func (s *ServerToken) Save(token string) error {
	return s.store.SaveToken(s.server, token)
}

// Clear removes the stored token. Clearing an absent token is a no-op.
func (s *ServerToken) Clear() error {
	return s.store.DeleteToken(s.server)
}
