package auth

import (
	"fmt"
	"time"
)

// Session is the resolved session for a request. Sessions are values: a
// refresh or update constructs a new instance and reissues the cookie, the
// old instance is never mutated in place.
type Session struct {
	User      *User          `json:"user"`
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	Strategy  string         `json:"strategy"`
	Token     string         `json:"token,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Principal derives the request principal from the session user.
func (s *Session) Principal() (Principal, error) {
	if s == nil || s.User == nil {
		return Principal{}, ErrUnauthenticated
	}
	return s.User.ToPrincipal()
}

// Expired reports whether the session is past its expiry at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Age returns how long ago the session was issued.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.IssuedAt)
}

// AddData appends information to the externally visible session payload. The
// session callback uses this to enrich responses.
func (s *Session) AddData(key string, val any) *Session {
	if s.Data == nil {
		s.Data = make(map[string]any)
	}
	s.Data[key] = val
	return s
}

func (s Session) String() string {
	userID := "<nil>"
	if s.User != nil {
		userID = s.User.ID
	}
	return fmt.Sprintf(
		"user=%s strategy=%s iat=%s exp=%s",
		userID,
		s.Strategy,
		s.IssuedAt.Format(time.RFC1123),
		s.ExpiresAt.Format(time.RFC1123),
	)
}
