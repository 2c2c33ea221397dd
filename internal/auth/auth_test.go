package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService("admin", "hunter2", "test-secret")
	require.NoError(t, err)
	return svc
}

func TestNewService_RequiresConfig(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		secret   string
	}{
		{"missing username", "", "hunter2", "s"},
		{"missing password", "admin", "", "s"},
		{"missing secret", "admin", "hunter2", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(tt.username, tt.password, tt.secret)
			assert.Error(t, err)
		})
	}
}

func TestLogin_RoundTrip(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.Login("admin", "hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	sub, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", sub)
}

func TestLogin_RejectsBadCredentials(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Login("admin", "wrong")
	assert.Error(t, err)

	_, err = svc.Login("intruder", "hunter2")
	assert.Error(t, err)
}

func TestVerifyToken_RejectsGarbage(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.VerifyToken("not.a.token")
	assert.Error(t, err)
}

func TestVerifyToken_RejectsForeignSignature(t *testing.T) {
	svc := newTestService(t)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tokenString, err := forged.SignedString([]byte("other-secret"))
	require.NoError(t, err)

	_, err = svc.VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyToken_RejectsExpired(t *testing.T) {
	svc := newTestService(t)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	tokenString, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyToken_RejectsWrongSubject(t *testing.T) {
	svc := newTestService(t)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tokenString, err := other.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.VerifyToken(tokenString)
	assert.Error(t, err)
}
