package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"dmchat/internal/domain"
)

// MemoryMessageRepository guarda mensajes en memoria del proceso. Se usa en
// desarrollo (sin DATABASE_URL) y en tests.
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages []domain.Message
	nextID   int64
	now      func() time.Time
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return NewMemoryMessageRepositoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryMessageRepositoryWithClock permite fijar el reloj usado para CreatedAt.
func NewMemoryMessageRepositoryWithClock(now func() time.Time) *MemoryMessageRepository {
	return &MemoryMessageRepository{now: now}
}

func (r *MemoryMessageRepository) Append(_ context.Context, senderID, receiverID, content string, attachmentURL *string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" && (attachmentURL == nil || *attachmentURL == "") {
		return domain.Message{}, ErrEmptyMessage
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	msg := domain.Message{
		ID:         r.nextID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  r.now(),
	}
	if attachmentURL != nil {
		ref := *attachmentURL
		msg.AttachmentURL = &ref
	}
	r.messages = append(r.messages, msg)
	return msg, nil
}

func (r *MemoryMessageRepository) ListBetween(_ context.Context, userA, userB string) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []domain.Message{}
	for _, m := range r.messages {
		if !m.IsDeleted && m.Involves(userA, userB) {
			out = append(out, m)
		}
	}
	sortAscending(out)
	return out, nil
}

func (r *MemoryMessageRepository) MarkRead(_ context.Context, receiverID, senderID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for i := range r.messages {
		m := &r.messages[i]
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.IsRead && !m.IsDeleted {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (r *MemoryMessageRepository) RecentPartners(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	involving, err := r.ListInvolving(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, limit)
	partners := make([]string, 0, limit)
	for _, m := range involving {
		p := m.PartnerOf(userID)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		partners = append(partners, p)
		if len(partners) == limit {
			break
		}
	}
	return partners, nil
}

func (r *MemoryMessageRepository) ListInvolving(_ context.Context, userID string) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []domain.Message{}
	for _, m := range r.messages {
		if !m.IsDeleted && (m.SenderID == userID || m.ReceiverID == userID) {
			out = append(out, m)
		}
	}
	sortAscending(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *MemoryMessageRepository) CountUnread(_ context.Context, receiverID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, m := range r.messages {
		if m.ReceiverID == receiverID && !m.IsRead && !m.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (r *MemoryMessageRepository) SoftDelete(_ context.Context, messageID int64, senderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.messages {
		m := &r.messages[i]
		if m.ID == messageID && m.SenderID == senderID && !m.IsDeleted {
			m.IsDeleted = true
			return nil
		}
	}
	return ErrNotFound
}

// Len devuelve la cantidad total de filas, incluidas las borradas.
func (r *MemoryMessageRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages)
}

func sortAscending(msgs []domain.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
