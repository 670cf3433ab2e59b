package auth

import "time"

// Session is one login. Its credential identifiers are overwritten in place
// on every refresh, so exactly one access/refresh pair is live per session.
type Session struct {
	ID               string
	UserID           string
	AccessID         string
	RefreshID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	IsActive         bool
	CreatedAt        time.Time
}

// TokenPair is what login and refresh hand back to the caller.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
