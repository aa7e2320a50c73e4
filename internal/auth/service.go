// Package auth guards the HTTP API with a single operator password. A
// successful login yields an HS256 JWT that authorizes later requests.
package auth

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "pausr"

// Config configures the Service.
type Config struct {
	// PasswordHash is a bcrypt hash, see HashPassword.
	PasswordHash string
	// JWTSecret signs tokens; a random secret is generated when empty, which
	// invalidates tokens on restart.
	JWTSecret string
	TokenTTL  time.Duration
}

// Service issues and verifies tokens.
type Service struct {
	hash      []byte
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.PasswordHash == "" {
		return nil, ErrNoPassword
	}
	if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
		return nil, fmt.Errorf("password_hash: %w", err)
	}
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{hash: []byte(cfg.PasswordHash), jwtSecret: secret, tokenTTL: ttl, now: time.Now}, nil
}

// HashPassword returns the bcrypt hash to put in the config.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("empty password")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Login checks password and issues a token.
func (s *Service) Login(password string) (*Token, error) {
	if password == "" || bcrypt.CompareHashAndPassword(s.hash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    issuer,
		Subject:   "operator",
	}
	v, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{Type: "Bearer", Value: v, ExpiresAt: expiresAt}, nil
}

// Verify validates a token issued by Login.
func (s *Service) Verify(token string) error {
	if token == "" {
		return ErrInvalidCredentials
	}
	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
