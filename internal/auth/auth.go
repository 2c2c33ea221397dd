// Package auth issues and verifies admin JWTs. There is a single admin
// identity configured from the environment; regular users never log in
// here, they only receive notifications.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Service handles admin authentication
type Service struct {
	username     string
	passwordHash []byte
	secret       []byte
	tokenTTL     time.Duration
}

// NewService hashes the configured admin password at startup so the plain
// text never lives past initialization.
func NewService(username, password, secret string) (*Service, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("admin credentials must be configured")
	}
	if secret == "" {
		return nil, fmt.Errorf("jwt secret must be configured")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Service{
		username:     username,
		passwordHash: hash,
		secret:       []byte(secret),
		tokenTTL:     24 * time.Hour,
	}, nil
}

// Login verifies credentials and generates a JWT
func (s *Service) Login(username, password string) (string, error) {
	if username != s.username {
		return "", fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": username,
		"exp": time.Now().Add(s.tokenTTL).Unix(),
	})
	return token.SignedString(s.secret)
}

// VerifyToken extracts the admin username from a JWT
func (s *Service) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	sub, _ := claims["sub"].(string)
	if sub != s.username {
		return "", fmt.Errorf("invalid token subject")
	}
	return sub, nil
}
