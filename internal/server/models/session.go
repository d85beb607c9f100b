package models

import "time"

// Session is a login issued to an account. Only the SHA-256 of the signed
// token is kept.
type Session struct {
	ID        string
	AccountID string
	TokenHash []byte
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
