package entity

import "time"

// Identity describes the signed-in user as reported by the identity provider
type Identity struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}
