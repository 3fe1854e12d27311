package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dmchat/internal/repository"
	"dmchat/internal/service"
)

func setupUserRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	users := repository.NewMemoryUserRepository()
	jwtSvc := newTestJWTService()
	h := NewUserHandler(zap.NewNop(), service.NewUserService(zap.NewNop(), users), jwtSvc)

	r := gin.New()
	r.POST("/users", h.CreateUser)
	r.GET("/users/me", JWTAuthMiddleware(jwtSvc, false), h.Me)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/refresh", h.RefreshToken)
	r.POST("/auth/logout", h.Logout)
	return r
}

func TestUserHandler_RegisterLoginRefreshLogout(t *testing.T) {
	r := setupUserRouter()

	rec := performRequest(r, http.MethodPost, "/users", map[string]string{
		"email":     "ana@example.com",
		"username":  "ana",
		"firstName": "Ana",
		"password":  "correct-horse",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := rec.Body.String(); containsAny(body, "passwordHash", "correct-horse") {
		t.Fatalf("password leaked in response: %s", body)
	}

	rec = performRequest(r, http.MethodPost, "/users", map[string]string{
		"email": "ana@example.com", "username": "ana2", "password": "correct-horse",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", rec.Code)
	}

	rec = performRequest(r, http.MethodPost, "/auth/login", map[string]string{
		"email": "ana@example.com", "password": "nope-nope",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}

	rec = performRequest(r, http.MethodPost, "/auth/login", map[string]string{
		"email": "ana@example.com", "password": "correct-horse",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on login, got %d", rec.Code)
	}
	var login struct {
		Tokens service.TokenPair `json:"tokens"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil || login.Tokens.RefreshToken == "" {
		t.Fatalf("expected tokens, got %s (%v)", rec.Body.String(), err)
	}

	rec = performRequest(r, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": login.Tokens.RefreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on refresh, got %d", rec.Code)
	}
	var refreshed struct {
		Tokens service.TokenPair `json:"tokens"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &refreshed)

	rec = performRequest(r, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": login.Tokens.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected rotated refresh token rejected, got %d", rec.Code)
	}

	rec = performRequest(r, http.MethodPost, "/auth/logout", map[string]string{"refreshToken": refreshed.Tokens.RefreshToken})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on logout, got %d", rec.Code)
	}
	rec = performRequest(r, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": refreshed.Tokens.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked refresh token rejected, got %d", rec.Code)
	}
}

func TestUserHandler_CreateUserValidation(t *testing.T) {
	r := setupUserRouter()

	cases := []map[string]string{
		{"email": "bad", "username": "x", "password": "12345678"},
		{"email": "x@example.com", "password": "12345678"},
		{"email": "x@example.com", "username": "x", "password": "short"},
	}
	for _, body := range cases {
		rec := performRequest(r, http.MethodPost, "/users", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %v, got %d", body, rec.Code)
		}
	}
}

func TestUserHandler_MeRequiresToken(t *testing.T) {
	r := setupUserRouter()
	rec := performRequest(r, http.MethodGet, "/users/me", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
