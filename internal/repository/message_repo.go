package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dmchat/internal/domain"
)

// MessageRepository define el contrato del almacén de mensajes directos.
// Todas las lecturas excluyen mensajes con borrado lógico.
type MessageRepository interface {
	Append(ctx context.Context, senderID, receiverID, content string, attachmentURL *string) (domain.Message, error)
	ListBetween(ctx context.Context, userA, userB string) ([]domain.Message, error)
	MarkRead(ctx context.Context, receiverID, senderID string) (int64, error)
	RecentPartners(ctx context.Context, userID string, limit int) ([]string, error)
	ListInvolving(ctx context.Context, userID string) ([]domain.Message, error)
	CountUnread(ctx context.Context, receiverID string) (int64, error)
	SoftDelete(ctx context.Context, messageID int64, senderID string) error
}

type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

const messageColumns = `id, sender_id, receiver_id, content, image_url, created_at, is_read, is_deleted`

func (r *PgMessageRepository) Append(ctx context.Context, senderID, receiverID, content string, attachmentURL *string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" && (attachmentURL == nil || *attachmentURL == "") {
		return domain.Message{}, ErrEmptyMessage
	}
	const query = `
		INSERT INTO messages (sender_id, receiver_id, content, image_url, created_at, is_read, is_deleted)
		VALUES ($1, $2, $3, $4, now(), FALSE, FALSE)
		RETURNING ` + messageColumns

	msg, err := scanMessage(r.pool.QueryRow(ctx, query, senderID, receiverID, content, attachmentURL))
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: append message: %w", ErrPersistence, err)
	}
	return msg, nil
}

func (r *PgMessageRepository) ListBetween(ctx context.Context, userA, userB string) ([]domain.Message, error) {
	const query = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		  AND NOT is_deleted
		ORDER BY created_at ASC, id ASC
	`
	return r.queryMessages(ctx, "list between", query, userA, userB)
}

func (r *PgMessageRepository) MarkRead(ctx context.Context, receiverID, senderID string) (int64, error) {
	// Un solo UPDATE: un mensaje que llega en paralelo puede quedar afuera,
	// la siguiente lectura lo marca.
	const query = `
		UPDATE messages
		SET is_read = TRUE
		WHERE sender_id = $1 AND receiver_id = $2 AND NOT is_read AND NOT is_deleted
	`
	tag, err := r.pool.Exec(ctx, query, senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("%w: mark read: %w", ErrPersistence, err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgMessageRepository) RecentPartners(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	const query = `
		SELECT partner_id
		FROM (
			SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS partner_id,
			       MAX(created_at) AS last_at,
			       MAX(id) AS last_id
			FROM messages
			WHERE (sender_id = $1 OR receiver_id = $1) AND NOT is_deleted
			GROUP BY 1
		) partners
		ORDER BY last_at DESC, last_id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent partners: %w", ErrPersistence, err)
	}
	defer rows.Close()

	partners := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: recent partners: %w", ErrPersistence, err)
		}
		partners = append(partners, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: recent partners: %w", ErrPersistence, err)
	}
	return partners, nil
}

func (r *PgMessageRepository) ListInvolving(ctx context.Context, userID string) ([]domain.Message, error) {
	const query = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (sender_id = $1 OR receiver_id = $1) AND NOT is_deleted
		ORDER BY created_at DESC, id DESC
	`
	return r.queryMessages(ctx, "list involving", query, userID)
}

func (r *PgMessageRepository) CountUnread(ctx context.Context, receiverID string) (int64, error) {
	const query = `
		SELECT COUNT(*)
		FROM messages
		WHERE receiver_id = $1 AND NOT is_read AND NOT is_deleted
	`
	var n int64
	if err := r.pool.QueryRow(ctx, query, receiverID).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count unread: %w", ErrPersistence, err)
	}
	return n, nil
}

func (r *PgMessageRepository) SoftDelete(ctx context.Context, messageID int64, senderID string) error {
	const query = `
		UPDATE messages
		SET is_deleted = TRUE
		WHERE id = $1 AND sender_id = $2 AND NOT is_deleted
	`
	tag, err := r.pool.Exec(ctx, query, messageID, senderID)
	if err != nil {
		return fmt.Errorf("%w: soft delete: %w", ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgMessageRepository) queryMessages(ctx context.Context, op, query string, args ...any) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
	}
	return messages, nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var msg domain.Message
	err := row.Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Content,
		&msg.AttachmentURL,
		&msg.CreatedAt,
		&msg.IsRead,
		&msg.IsDeleted,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, ErrNotFound
	}
	return msg, err
}
