package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dmchat/internal/domain"
	"dmchat/internal/realtime"
	"dmchat/internal/repository"
	"dmchat/internal/service"
)

type memStore struct{ n int }

func (s *memStore) Store(_ context.Context, _ []byte, originalName, _ string) (string, error) {
	s.n++
	return "/uploads/messages/" + originalName, nil
}

type testEnv struct {
	router *gin.Engine
	hub    *realtime.Hub
	repo   *repository.MemoryMessageRepository
	users  repository.UserRepository
	jwt    *service.JWTService
	tokens map[string]string
}

func newTestEnv(t *testing.T, opts RouterOptions) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryMessageRepository()
	users := repository.NewMemoryUserRepository()
	hub := realtime.NewHub(zap.NewNop())
	t.Cleanup(hub.Close)
	jwtSvc := service.NewJWTService("secret", 15*time.Minute, time.Hour, nil)
	formatter := service.NewTimeFormatter(time.UTC)

	msgSvc := service.NewMessageService(repo, users, &memStore{}, hub, nil, formatter, "/assets/user.png", zap.NewNop())
	convSvc := service.NewConversationService(repo, users, formatter, "/assets/user.png", zap.NewNop())
	userSvc := service.NewUserService(zap.NewNop(), users)

	r := NewRouter(zap.NewNop(), opts, jwtSvc,
		NewUserHandler(zap.NewNop(), userSvc, jwtSvc),
		NewMessageHandler(zap.NewNop(), msgSvc, convSvc),
		NewWSHandler(zap.NewNop(), hub, []string{"*"}),
	)

	env := &testEnv{router: r, hub: hub, repo: repo, users: users, jwt: jwtSvc, tokens: map[string]string{}}
	for _, u := range []domain.User{
		{ID: "alice", Email: "alice@example.com", Username: "alice", FirstName: "Alice", Avatar: "/avatars/alice.png"},
		{ID: "bob", Email: "bob@example.com", Username: "bob"},
	} {
		if err := users.Create(context.Background(), u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
		pair, err := jwtSvc.GeneratePair(u)
		if err != nil {
			t.Fatalf("generate pair: %v", err)
		}
		env.tokens[u.ID] = pair.AccessToken
	}
	return env
}

func (e *testEnv) do(method, path, user string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[user])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func performRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}
