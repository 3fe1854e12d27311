package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"dmchat/internal/domain"
	"dmchat/internal/metrics"
	"dmchat/internal/realtime"
	"dmchat/internal/repository"
	"dmchat/internal/storage"
)

const (
	// MaxAttachmentBytes es el techo de tamaño de un adjunto (5 MiB).
	MaxAttachmentBytes = 5 << 20
	// ImagePlaceholder reemplaza el texto vacío de un mensaje solo-imagen.
	ImagePlaceholder = "[Image]"

	sendFailedReason = "Could not send the message"
)

var allowedAttachmentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/gif":  {},
}

// Attachment es un archivo subido junto a un mensaje.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// SendInput agrupa los datos de un envío. SenderID viene de la identidad
// autenticada, nunca del cuerpo del request.
type SendInput struct {
	SenderID   string
	ReceiverID string
	Content    string
	Attachment *Attachment
}

// SendResult es la forma fija que ve el cliente al enviar.
type SendResult struct {
	Success bool                `json:"success"`
	Error   string              `json:"error,omitempty"`
	Message *domain.MessageView `json:"message,omitempty"`
}

// NewSendResult convierte el resultado de Send en la respuesta del cliente.
// Las validaciones exponen su motivo; el resto se reporta genérico.
func NewSendResult(view domain.MessageView, err error) SendResult {
	if err == nil {
		return SendResult{Success: true, Message: &view}
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return SendResult{Success: false, Error: verr.Reason}
	}
	if errors.Is(err, ErrIdentityMissing) {
		return SendResult{Success: false, Error: "Not authenticated"}
	}
	return SendResult{Success: false, Error: sendFailedReason}
}

// MessageService valida, persiste y entrega mensajes directos.
type MessageService struct {
	repo          repository.MessageRepository
	users         repository.UserRepository
	attachments   storage.AttachmentStore
	pusher        realtime.Pusher
	limiter       SendRateLimiter
	formatter     TimeFormatter
	defaultAvatar string
	logger        *zap.Logger
}

func NewMessageService(
	repo repository.MessageRepository,
	users repository.UserRepository,
	attachments storage.AttachmentStore,
	pusher realtime.Pusher,
	limiter SendRateLimiter,
	formatter TimeFormatter,
	defaultAvatar string,
	logger *zap.Logger,
) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		repo:          repo,
		users:         users,
		attachments:   attachments,
		pusher:        pusher,
		limiter:       limiter,
		formatter:     formatter,
		defaultAvatar: defaultAvatar,
		logger:        logger,
	}
}

// Send valida y persiste el mensaje y recién después lo empuja al receptor.
// Si el push no llega (receptor offline) el mensaje queda disponible por
// historial.
func (s *MessageService) Send(ctx context.Context, in SendInput) (domain.MessageView, error) {
	senderID := strings.TrimSpace(in.SenderID)
	receiverID := strings.TrimSpace(in.ReceiverID)
	if senderID == "" {
		return domain.MessageView{}, ErrIdentityMissing
	}

	if err := s.checkReceiver(ctx, senderID, receiverID); err != nil {
		return domain.MessageView{}, s.reject(err)
	}

	att := in.Attachment
	if att != nil && len(att.Data) == 0 {
		att = nil
	}
	if att != nil {
		if err := validateAttachment(att); err != nil {
			return domain.MessageView{}, s.reject(err)
		}
	}

	content := strings.TrimSpace(in.Content)
	if content == "" && att == nil {
		return domain.MessageView{}, s.reject(newValidationError(KindEmptyMessage, "Message cannot be empty"))
	}

	if s.limiter != nil && !s.limiter.Allow(senderID) {
		return domain.MessageView{}, s.reject(newValidationError(KindRateLimited, "Too many messages, slow down"))
	}

	var attachmentURL *string
	if att != nil {
		if s.attachments == nil {
			return domain.MessageView{}, storage.ErrStorageNotConfigured
		}
		ref, err := s.attachments.Store(ctx, att.Data, att.Name, normalizeContentType(att.ContentType))
		if err != nil {
			s.logger.Error("store attachment failed", zap.String("sender_id", senderID), zap.Error(err))
			return domain.MessageView{}, fmt.Errorf("store attachment: %w", err)
		}
		attachmentURL = &ref
	}
	if content == "" {
		content = ImagePlaceholder
	}

	msg, err := s.repo.Append(ctx, senderID, receiverID, content, attachmentURL)
	if err != nil {
		s.logger.Error("append message failed",
			zap.String("sender_id", senderID),
			zap.String("receiver_id", receiverID),
			zap.Error(err),
		)
		if attachmentURL != nil {
			// El adjunto ya se guardó y ninguna fila lo referencia.
			s.logger.Error("orphaned attachment",
				zap.String("sender_id", senderID),
				zap.String("attachment_ref", *attachmentURL),
			)
		}
		return domain.MessageView{}, err
	}
	metrics.MessagesSent.Inc()

	if s.pusher != nil {
		s.pusher.Push(receiverID, domain.EventReceiveMessage, domain.DeliveryPayload{
			ID:           msg.ID,
			SenderID:     msg.SenderID,
			ReceiverID:   msg.ReceiverID,
			Content:      msg.Content,
			ImageURL:     msg.AttachmentURL,
			Time:         s.formatter.Time(msg.CreatedAt),
			Date:         s.formatter.Date(msg.CreatedAt),
			SenderAvatar: s.avatarOf(ctx, senderID),
		})
	}

	return domain.MessageView{
		ID:       msg.ID,
		Content:  msg.Content,
		ImageURL: msg.AttachmentURL,
		Time:     s.formatter.Time(msg.CreatedAt),
	}, nil
}

// History devuelve la conversación completa con partnerID y marca como
// leído todo lo que partnerID le envió a userID.
func (s *MessageService) History(ctx context.Context, userID, partnerID string) ([]domain.HistoryEntry, error) {
	userID = strings.TrimSpace(userID)
	partnerID = strings.TrimSpace(partnerID)
	if userID == "" {
		return nil, ErrIdentityMissing
	}
	if partnerID == "" {
		return []domain.HistoryEntry{}, nil
	}

	msgs, err := s.repo.ListBetween(ctx, userID, partnerID)
	if err != nil {
		s.logger.Error("list history failed", zap.String("user_id", userID), zap.String("partner_id", partnerID), zap.Error(err))
		return nil, err
	}
	if _, err := s.repo.MarkRead(ctx, userID, partnerID); err != nil {
		s.logger.Error("mark read failed", zap.String("user_id", userID), zap.String("partner_id", partnerID), zap.Error(err))
		return nil, err
	}

	out := make([]domain.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, domain.HistoryEntry{
			ID:       m.ID,
			Content:  m.Content,
			ImageURL: m.AttachmentURL,
			SenderID: m.SenderID,
			IsOwn:    m.SenderID == userID,
			Time:     s.formatter.Time(m.CreatedAt),
			Date:     s.formatter.Date(m.CreatedAt),
		})
	}
	return out, nil
}

// Delete oculta un mensaje propio. Mensajes ajenos o inexistentes dan
// repository.ErrNotFound.
func (s *MessageService) Delete(ctx context.Context, userID string, messageID int64) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrIdentityMissing
	}
	if messageID <= 0 {
		return repository.ErrNotFound
	}
	if err := s.repo.SoftDelete(ctx, messageID, userID); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("soft delete failed", zap.Int64("message_id", messageID), zap.Error(err))
		}
		return err
	}
	return nil
}

// UnreadTotal cuenta los mensajes no leídos dirigidos a userID.
func (s *MessageService) UnreadTotal(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrIdentityMissing
	}
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		s.logger.Error("count unread failed", zap.String("user_id", userID), zap.Error(err))
		return 0, err
	}
	return n, nil
}

// SignalTyping reenvía el indicador de escritura. No se persiste nada.
func (s *MessageService) SignalTyping(senderID, receiverID string) (int, error) {
	senderID = strings.TrimSpace(senderID)
	receiverID = strings.TrimSpace(receiverID)
	if senderID == "" {
		return 0, ErrIdentityMissing
	}
	if receiverID == "" || receiverID == senderID {
		return 0, newValidationError(KindInvalidReceiver, "Invalid receiver")
	}
	if s.pusher == nil {
		return 0, nil
	}
	return s.pusher.RelayTyping(senderID, receiverID), nil
}

func (s *MessageService) checkReceiver(ctx context.Context, senderID, receiverID string) error {
	if receiverID == "" || receiverID == senderID {
		return newValidationError(KindInvalidReceiver, "Invalid receiver")
	}
	if s.users == nil {
		return nil
	}
	if _, err := s.users.GetByID(ctx, receiverID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newValidationError(KindInvalidReceiver, "Invalid receiver")
		}
		return fmt.Errorf("lookup receiver: %w", err)
	}
	return nil
}

func (s *MessageService) reject(err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		metrics.SendRejected.WithLabelValues(string(verr.Kind)).Inc()
		s.logger.Debug("send rejected", zap.String("kind", string(verr.Kind)))
	}
	return err
}

// avatarOf nunca falla: un perfil ausente usa el avatar por defecto.
func (s *MessageService) avatarOf(ctx context.Context, userID string) string {
	if s.users == nil {
		return s.defaultAvatar
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return s.defaultAvatar
	}
	return u.AvatarOr(s.defaultAvatar)
}

// validateAttachment chequea el tipo declarado, el tamaño y el tipo real
// detectado por contenido.
func validateAttachment(att *Attachment) error {
	if declared := normalizeContentType(att.ContentType); declared != "" {
		if _, ok := allowedAttachmentTypes[declared]; !ok {
			return newValidationError(KindUnsupportedAttachmentType, "Only JPG, PNG or GIF images are allowed")
		}
	}
	if len(att.Data) > MaxAttachmentBytes {
		return newValidationError(KindAttachmentTooLarge, "Image must not exceed 5MB")
	}
	detected := normalizeContentType(mimetype.Detect(att.Data).String())
	if _, ok := allowedAttachmentTypes[detected]; !ok {
		return newValidationError(KindUnsupportedAttachmentType, "Only JPG, PNG or GIF images are allowed")
	}
	return nil
}

func normalizeContentType(ct string) string {
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
