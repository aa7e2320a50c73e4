package auth

import (
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials covers a wrong password and a bad or expired token.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoPassword is returned by New when auth is enabled without a hash.
	ErrNoPassword = errors.New("auth enabled without password_hash")
)

// Token is an issued bearer token.
type Token struct {
	Type      string    `json:"type"` // "Bearer"
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Password string `json:"password"`
}
