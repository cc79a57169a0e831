package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing-purposes"

func TestNewService(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	assert.NotNil(t, service)
	assert.Equal(t, testSecret, service.secret)
	assert.Equal(t, time.Hour, service.accessTokenExpiry)
}

func TestValidateAccessToken(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	userID := uuid.New()
	email := "jean@example.ga"
	roles := []string{"passenger", "admin"}

	token, err := service.GenerateAccessToken(userID, email, roles)
	require.NoError(t, err)

	t.Run("Valid token", func(t *testing.T) {
		claims, err := service.ValidateAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
		assert.Equal(t, email, claims.Email)
		assert.Equal(t, roles, claims.Roles)
		assert.Equal(t, Issuer, claims.Issuer)
		assert.Equal(t, userID.String(), claims.Subject)
		assert.True(t, claims.HasRole("admin"))
		assert.False(t, claims.HasRole("super_admin"))
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := service.ValidateAccessToken("invalid.token.here")
		assert.Error(t, err)
	})

	t.Run("Wrong secret", func(t *testing.T) {
		_, err := NewService("wrong-secret", time.Hour).ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("Expired", func(t *testing.T) {
		expired, err := NewService(testSecret, -time.Hour).GenerateAccessToken(userID, email, roles)
		require.NoError(t, err)
		_, err = service.ValidateAccessToken(expired)
		assert.Error(t, err)
	})
}

func sign(t *testing.T, claims jwt.Claims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestValidateAccessTokenClaims(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	userID := uuid.New()
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	t.Run("Subject fills a missing user id", func(t *testing.T) {
		token := sign(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String(), ExpiresAt: exp}}, jwt.SigningMethodHS256, []byte(testSecret))

		claims, err := service.ValidateAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
	})

	t.Run("Email-only identity", func(t *testing.T) {
		token := sign(t, Claims{Email: "guest@example.ga", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}}, jwt.SigningMethodHS256, []byte(testSecret))

		claims, err := service.ValidateAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, claims.UserID)
		assert.Equal(t, "guest@example.ga", claims.Email)
	})

	t.Run("No identity", func(t *testing.T) {
		token := sign(t, Claims{Roles: []string{"admin"}, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}}, jwt.SigningMethodHS256, []byte(testSecret))

		_, err := service.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("No expiry", func(t *testing.T) {
		token := sign(t, Claims{UserID: userID}, jwt.SigningMethodHS256, []byte(testSecret))

		_, err := service.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("Unsigned token", func(t *testing.T) {
		token := sign(t, Claims{UserID: userID, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}}, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)

		_, err := service.ValidateAccessToken(token)
		assert.Error(t, err)
	})
}

func TestConcurrentTokenGeneration(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	done := make(chan bool)
	errors := make(chan error, 100)

	for i := 0; i < 100; i++ {
		go func() {
			token, err := service.GenerateAccessToken(uuid.New(), "jean@example.ga", []string{"passenger"})
			if err != nil {
				errors <- err
				done <- true
				return
			}

			_, err = service.ValidateAccessToken(token)
			if err != nil {
				errors <- err
			}
			done <- true
		}()
	}

	for i := 0; i < 100; i++ {
		<-done
	}

	close(errors)
	assert.Empty(t, errors)
}
