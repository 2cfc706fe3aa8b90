package jwtmiddleware_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/linemk/farm-shop/internal/domain/models"
	"github.com/linemk/farm-shop/internal/jwt-new/jwtmiddleware"
	"github.com/stretchr/testify/assert"
)

// createTestToken создаёт JWT-токен с заданным userID, ролью и секретом.
func createTestToken(userID int64, role, secret string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  fmt.Sprintf("%d", userID),
		"role": role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestJWTMiddleware_MissingAuthorization(t *testing.T) {
	os.Setenv("JWT_SECRET", "testsecret")
	defer os.Unsetenv("JWT_SECRET")

	handler := jwtmiddleware.NewJWTMiddleware()(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code, "Expected unauthorized status when no token provided")
	assert.True(t, strings.Contains(rr.Body.String(), "missing token"))
}

func TestJWTMiddleware_InvalidAuthorizationFormat(t *testing.T) {
	os.Setenv("JWT_SECRET", "testsecret")
	defer os.Unsetenv("JWT_SECRET")

	handler := jwtmiddleware.NewJWTMiddleware()(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "InvalidFormat")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code, "Expected unauthorized status for invalid token format")
	assert.True(t, strings.Contains(rr.Body.String(), "invalid token format"))
}

func TestJWTMiddleware_InvalidToken(t *testing.T) {
	os.Setenv("JWT_SECRET", "testsecret")
	defer os.Unsetenv("JWT_SECRET")

	handler := jwtmiddleware.NewJWTMiddleware()(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer invalid.token.value")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code, "Expected unauthorized status for invalid token")
	assert.True(t, strings.Contains(rr.Body.String(), "invalid token"))
}

func TestJWTMiddleware_MissingRole(t *testing.T) {
	secret := "testsecret"
	os.Setenv("JWT_SECRET", secret)
	defer os.Unsetenv("JWT_SECRET")

	tokenStr, err := createTestToken(1, "", secret)
	assert.NoError(t, err)

	handler := jwtmiddleware.NewJWTMiddleware()(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid role")
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	secret := "testsecret"
	os.Setenv("JWT_SECRET", secret)
	defer os.Unsetenv("JWT_SECRET")

	tokenStr, err := createTestToken(123, "farmer", secret)
	assert.NoError(t, err)

	var got models.Actor
	handler := jwtmiddleware.NewJWTMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := jwtmiddleware.ActorFromContext(r.Context())
		if !ok {
			http.Error(w, "actor not found", http.StatusInternalServerError)
			return
		}
		got = actor
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "Expected OK status for valid token")
	assert.Equal(t, models.Actor{ID: 123, Role: models.RoleFarmer}, got)
}

func TestRequireRole(t *testing.T) {
	handler := jwtmiddleware.RequireRole(models.RoleFarmer)(okHandler())

	tests := []struct {
		name   string
		ctx    context.Context
		status int
	}{
		{"no actor", context.Background(), http.StatusUnauthorized},
		{"customer", jwtmiddleware.WithActor(context.Background(), models.Actor{ID: 1, Role: models.RoleCustomer}), http.StatusForbidden},
		{"farmer", jwtmiddleware.WithActor(context.Background(), models.Actor{ID: 2, Role: models.RoleFarmer}), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil).WithContext(tt.ctx)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), jwtmiddleware.UserIDKey, int64(456))
	userID, ok := jwtmiddleware.FromContext(ctx)
	assert.True(t, ok, "Expected to retrieve userID from context")
	assert.Equal(t, int64(456), userID, "Expected userID to match")

	_, ok = jwtmiddleware.ActorFromContext(ctx)
	assert.False(t, ok, "actor requires a role")
}
