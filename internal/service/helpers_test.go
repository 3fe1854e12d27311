package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"dmchat/internal/domain"
	"dmchat/internal/repository"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type pushCall struct {
	userID  string
	event   string
	payload any
}

type recordingPusher struct {
	mu     sync.Mutex
	pushes []pushCall
	typing [][2]string
	online map[string]int
}

func (p *recordingPusher) Push(userID, event string, payload any) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, pushCall{userID: userID, event: event, payload: payload})
	return p.online[userID]
}

func (p *recordingPusher) RelayTyping(senderID, receiverID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typing = append(p.typing, [2]string{senderID, receiverID})
	return p.online[receiverID]
}

type recordingStore struct {
	calls int
	names []string
	err   error
}

func (s *recordingStore) Store(_ context.Context, _ []byte, originalName, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	ref := fmt.Sprintf("/uploads/messages/%d-%s", s.calls, originalName)
	s.names = append(s.names, ref)
	return ref, nil
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(string) bool { return false }

// failingMessageRepo simula un store caído.
type failingMessageRepo struct{}

var errStoreDown = fmt.Errorf("%w: connection refused", repository.ErrPersistence)

func (failingMessageRepo) Append(context.Context, string, string, string, *string) (domain.Message, error) {
	return domain.Message{}, errStoreDown
}
func (failingMessageRepo) ListBetween(context.Context, string, string) ([]domain.Message, error) {
	return nil, errStoreDown
}
func (failingMessageRepo) MarkRead(context.Context, string, string) (int64, error) {
	return 0, errStoreDown
}
func (failingMessageRepo) RecentPartners(context.Context, string, int) ([]string, error) {
	return nil, errStoreDown
}
func (failingMessageRepo) ListInvolving(context.Context, string) ([]domain.Message, error) {
	return nil, errStoreDown
}
func (failingMessageRepo) CountUnread(context.Context, string) (int64, error) {
	return 0, errStoreDown
}
func (failingMessageRepo) SoftDelete(context.Context, int64, string) error {
	return errStoreDown
}

type flakyUserRepo struct {
	repository.UserRepository
	failFor string
}

func (r flakyUserRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	if id == r.failFor {
		return domain.User{}, errors.New("profile backend timeout")
	}
	return r.UserRepository.GetByID(ctx, id)
}

// steppingClock avanza un minuto por llamada, así cada mensaje tiene su
// propio timestamp.
type steppingClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Minute)
	return c.cur
}

func seedUsers(t *testing.T, repo repository.UserRepository, users ...domain.User) {
	t.Helper()
	for _, u := range users {
		if err := repo.Create(context.Background(), u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
}

func testUser(id, first, last, avatar string) domain.User {
	return domain.User{
		ID:        id,
		Email:     id + "@example.com",
		Username:  id,
		FirstName: first,
		LastName:  last,
		Avatar:    avatar,
	}
}
