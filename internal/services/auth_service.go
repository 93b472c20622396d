package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const adminPasswordKey = "auth.admin_password_hash"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// AuthService issues and verifies the admin API tokens. A single admin
// credential is kept as a bcrypt hash in the settings store; the API is an
// operator surface, not a multi-tenant product.
type AuthService struct {
	Settings *SettingsService
	Secret   []byte
	TokenTTL time.Duration
}

func NewAuthService(settings *SettingsService, secret string) *AuthService {
	return &AuthService{
		Settings: settings,
		Secret:   []byte(secret),
		TokenTTL: 24 * time.Hour,
	}
}

// SetPassword stores the admin credential.
func (s *AuthService) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.Settings.PutSetting(adminPasswordKey, string(hash))
}

// HasPassword reports whether an admin credential exists yet.
func (s *AuthService) HasPassword() bool {
	_, ok := s.Settings.GetSetting(adminPasswordKey)
	return ok
}

// Login verifies the credential and returns a signed token.
func (s *AuthService) Login(password string) (string, error) {
	hash, ok := s.Settings.GetSetting(adminPasswordKey)
	if !ok {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.Secret)
}

// Verify validates a bearer token and returns its subject.
func (s *AuthService) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.Secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
