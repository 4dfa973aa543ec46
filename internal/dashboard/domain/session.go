package domain

import "time"

// SessionState is where a browser session sits in the login flow.
type SessionState int

const (
	StateAnonymous SessionState = iota
	StatePasswordOK
	StateAuthenticated
)

func (s SessionState) String() string {
	switch s {
	case StatePasswordOK:
		return "password_ok"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Session is server-side login state. The client only holds a signed
// reference to ID.
type Session struct {
	ID           string // ULID
	Username     string
	MFAValidated bool
	MFAAttempts  int
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// State derives the login state; a nil session is anonymous.
func (s *Session) State() SessionState {
	switch {
	case s == nil || s.Username == "":
		return StateAnonymous
	case !s.MFAValidated:
		return StatePasswordOK
	default:
		return StateAuthenticated
	}
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
