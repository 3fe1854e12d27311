package domain

import "time"

// Message es la unidad atómica de una conversación directa.
// SenderID, ReceiverID y CreatedAt no cambian una vez persistido; IsRead e
// IsDeleted solo transicionan de false a true.
type Message struct {
	ID            int64     `json:"id"`
	SenderID      string    `json:"senderId"`
	ReceiverID    string    `json:"receiverId"`
	Content       string    `json:"content"`
	AttachmentURL *string   `json:"imageUrl"`
	CreatedAt     time.Time `json:"createdAt"`
	IsRead        bool      `json:"isRead"`
	IsDeleted     bool      `json:"-"`
}

// HasAttachment indica si el mensaje referencia un adjunto.
func (m Message) HasAttachment() bool {
	return m.AttachmentURL != nil && *m.AttachmentURL != ""
}

// PartnerOf devuelve la otra parte del mensaje desde la perspectiva de userID.
func (m Message) PartnerOf(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Involves indica si el mensaje pertenece al par (a, b) en cualquier dirección.
func (m Message) Involves(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}
