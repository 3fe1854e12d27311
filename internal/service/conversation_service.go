package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"dmchat/internal/domain"
	"dmchat/internal/repository"
)

// RecentConversationLimit es la cantidad máxima de conversaciones listadas.
const RecentConversationLimit = 10

// ConversationsResult hace explícito el caso degradado: ante cualquier falla
// Success es false y la lista queda vacía.
type ConversationsResult struct {
	Success       bool                         `json:"success"`
	Conversations []domain.ConversationSummary `json:"conversations"`
}

// ConversationService arma la lista de conversaciones recientes y la
// cabecera de cada chat.
type ConversationService struct {
	repo          repository.MessageRepository
	users         repository.UserRepository
	formatter     TimeFormatter
	defaultAvatar string
	logger        *zap.Logger
}

func NewConversationService(
	repo repository.MessageRepository,
	users repository.UserRepository,
	formatter TimeFormatter,
	defaultAvatar string,
	logger *zap.Logger,
) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{
		repo:          repo,
		users:         users,
		formatter:     formatter,
		defaultAvatar: defaultAvatar,
		logger:        logger,
	}
}

// Recent nunca devuelve error: sin identidad o con el store caído la lista
// sale vacía con Success=false.
func (s *ConversationService) Recent(ctx context.Context, userID string) ConversationsResult {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ConversationsResult{Success: false, Conversations: []domain.ConversationSummary{}}
	}
	list, err := s.recent(ctx, userID)
	if err != nil {
		s.logger.Error("load conversations failed", zap.String("user_id", userID), zap.Error(err))
		return ConversationsResult{Success: false, Conversations: []domain.ConversationSummary{}}
	}
	return ConversationsResult{Success: true, Conversations: list}
}

func (s *ConversationService) recent(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	partners, err := s.repo.RecentPartners(ctx, userID, RecentConversationLimit)
	if err != nil {
		return nil, err
	}
	if len(partners) == 0 {
		return []domain.ConversationSummary{}, nil
	}

	msgs, err := s.repo.ListInvolving(ctx, userID)
	if err != nil {
		return nil, err
	}
	// msgs viene del más nuevo al más viejo: el primero por partner es el último.
	last := make(map[string]domain.Message, len(partners))
	unread := make(map[string]int, len(partners))
	for _, m := range msgs {
		p := m.PartnerOf(userID)
		if _, ok := last[p]; !ok {
			last[p] = m
		}
		if m.ReceiverID == userID && !m.IsRead {
			unread[p]++
		}
	}

	out := make([]domain.ConversationSummary, 0, len(partners))
	for _, partnerID := range partners {
		profile, err := s.users.GetByID(ctx, partnerID)
		if err != nil {
			s.logger.Warn("skip conversation, partner profile unavailable",
				zap.String("user_id", userID),
				zap.String("partner_id", partnerID),
				zap.Error(err),
			)
			continue
		}
		lastMsg, ok := last[partnerID]
		if !ok {
			// Borrado concurrente entre las dos lecturas.
			continue
		}
		out = append(out, domain.ConversationSummary{
			UserID:      partnerID,
			Name:        profile.DisplayName(),
			Avatar:      profile.AvatarOr(s.defaultAvatar),
			LastMessage: Preview(lastMsg.Content),
			TimeAgo:     s.formatter.Ago(lastMsg.CreatedAt),
			Unread:      unread[partnerID] > 0,
		})
	}
	return out, nil
}

// PartnerHeader devuelve nombre y avatar del otro participante.
func (s *ConversationService) PartnerHeader(ctx context.Context, userID, partnerID string) (domain.PartnerHeader, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.PartnerHeader{}, ErrIdentityMissing
	}
	partnerID = strings.TrimSpace(partnerID)
	if partnerID == "" {
		return domain.PartnerHeader{}, repository.ErrNotFound
	}
	u, err := s.users.GetByID(ctx, partnerID)
	if err != nil {
		return domain.PartnerHeader{}, err
	}
	return domain.PartnerHeader{
		UserID: u.ID,
		Name:   u.DisplayName(),
		Avatar: u.AvatarOr(s.defaultAvatar),
	}, nil
}
