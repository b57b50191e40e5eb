// Package session owns the admin session: who is signed in, whether the
// session is usable, and the token that proves it.
//
// Store is the passive container; Controller is the only writer. Readers
// take snapshots with Store.Get or subscribe to Controller changes.
package session

import (
	"fmt"
	"sync"

	"github.com/consultadmin/consultadmin/internal/cli/client"
)

// RoleAdmin is the only role allowed to hold a session
const RoleAdmin = "admin"

// State is a session lifecycle state
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// User is the signed-in identity
type User struct {
	ID    string
	Name  string
	Email string
	Role  string
}

func userFromAPI(u *client.User) *User {
	if u == nil {
		return nil
	}
	return &User{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// Snapshot is a point-in-time copy of the session
type Snapshot struct {
	State           State
	Token           string
	User            *User
	IsAuthenticated bool
	Loading         bool
	// Version increases with every change; a higher version is newer
	Version uint64
}

func (s Snapshot) clone() Snapshot {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

func (s Snapshot) equal(o Snapshot) bool {
	if s.State != o.State || s.Token != o.Token || s.IsAuthenticated != o.IsAuthenticated || s.Loading != o.Loading {
		return false
	}
	if (s.User == nil) != (o.User == nil) {
		return false
	}
	return s.User == nil || *s.User == *o.User
}

// TokenStorage is durable token storage that survives process restarts.
// Load returns "" when no token is stored; Clear on an absent token is a
// no-op.
type TokenStorage interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// Store holds the current session
type Store struct {
	mu      sync.RWMutex
	snap    Snapshot
	storage TokenStorage
}

// NewStore returns an empty, uninitialized store backed by storage
func NewStore(storage TokenStorage) *Store {
	return &Store{storage: storage}
}

// Get returns the current snapshot
func (s *Store) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// Token returns the current bearer token, or "". It is the client's token
// source.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Token
}

// set applies fn to the session under the write lock. IsAuthenticated and
// Version are derived, never written directly.
func (s *Store) set(fn func(*Snapshot)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := s.snap.Version
	fn(&s.snap)
	s.snap.Version = version + 1
	s.snap.IsAuthenticated = s.snap.State == StateAuthenticated &&
		s.snap.Token != "" &&
		s.snap.User != nil &&
		s.snap.User.Role == RoleAdmin
	return s.snap.clone()
}

func (s *Store) loadToken() (string, error) {
	return s.storage.Load()
}

func (s *Store) persistToken(token string) error {
	return s.storage.Save(token)
}

func (s *Store) clearToken() error {
	return s.storage.Clear()
}
