package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Service exchanges the connector API key for short-lived bearer tokens.
// The key is verified against a bcrypt hash when one is configured, so
// the plain key never has to live in the environment of the running
// service; a plain key is accepted as a fallback for simple deployments.
type Service struct {
	issuer     string
	secret     []byte
	ttl        time.Duration
	apiKeyHash string
	apiKey     string
}

func NewService(issuer string, secret []byte, ttl time.Duration, apiKeyHash, apiKey string) *Service {
	return &Service{issuer: issuer, secret: secret, ttl: ttl, apiKeyHash: apiKeyHash, apiKey: apiKey}
}

// Enabled reports whether token auth is configured at all.
func (s *Service) Enabled() bool {
	return len(s.secret) > 0 && (s.apiKeyHash != "" || s.apiKey != "")
}

// VerifyKey reports whether the presented API key is the configured one.
// The hash takes precedence when both are set.
func (s *Service) VerifyKey(apiKey string) bool {
	if s.apiKeyHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(s.apiKeyHash), []byte(apiKey)) == nil
	}
	if s.apiKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.apiKey), []byte(apiKey)) == 1
}

// IssueToken verifies the API key and signs a token for it.
func (s *Service) IssueToken(apiKey string) (string, error) {
	if !s.Enabled() {
		return "", errors.New("token auth is not configured")
	}
	if !s.VerifyKey(apiKey) {
		return "", ErrInvalidCredentials
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   "connector",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

// ParseToken validates a bearer token and returns its subject.
func (s *Service) ParseToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Issuer != s.issuer {
		return "", errors.New("invalid issuer")
	}
	if claims.Subject == "" {
		return "", errors.New("invalid subject")
	}
	return claims.Subject, nil
}
