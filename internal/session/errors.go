package session

import "errors"

var (
	ErrAdminRequired      = errors.New("admin privileges required")
	ErrLoginFailed        = errors.New("login failed")
	ErrLoginInProgress    = errors.New("login already in progress")
	ErrBusy               = errors.New("session is resolving")
	ErrSuperseded         = errors.New("superseded by a newer session change")
	ErrCredentialRejected = errors.New("credential rejected")
	ErrClosed             = errors.New("session controller closed")
)

// LoginError is a failed login. Message is what the user should see: the
// server's own text when it sent one.
type LoginError struct {
	Message string
	Err     error
}

func (e *LoginError) Error() string {
	return e.Message
}

func (e *LoginError) Unwrap() []error {
	return []error{ErrLoginFailed, e.Err}
}
