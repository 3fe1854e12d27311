package domain

// Vistas con forma fija que cruzan el borde HTTP/websocket. Los nombres JSON
// siguen el contrato del cliente web (camelCase).

// MessageView es el eco mínimo que recibe quien envía un mensaje.
type MessageView struct {
	ID       int64   `json:"id"`
	Content  string  `json:"content"`
	ImageURL *string `json:"imageUrl"`
	Time     string  `json:"time"`
}

// HistoryEntry es un mensaje del historial visto por el usuario actual.
type HistoryEntry struct {
	ID       int64   `json:"id"`
	Content  string  `json:"content"`
	ImageURL *string `json:"imageUrl"`
	SenderID string  `json:"senderId"`
	IsOwn    bool    `json:"isOwn"`
	Time     string  `json:"time"`
	Date     string  `json:"date"`
}

// DeliveryPayload es el cuerpo del evento ReceiveMessage.
type DeliveryPayload struct {
	ID           int64   `json:"id"`
	SenderID     string  `json:"senderId"`
	ReceiverID   string  `json:"receiverId"`
	Content      string  `json:"content"`
	ImageURL     *string `json:"imageUrl"`
	Time         string  `json:"time"`
	Date         string  `json:"date"`
	SenderAvatar string  `json:"senderAvatar"`
}

// ConversationSummary es una fila de la lista de conversaciones recientes.
// Solo expone si hay no leídos, no la cantidad.
type ConversationSummary struct {
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar"`
	LastMessage string `json:"lastMessage"`
	TimeAgo     string `json:"timeAgo"`
	Unread      bool   `json:"unread"`
}

// PartnerHeader alimenta la cabecera de una ventana de chat.
type PartnerHeader struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}
