package domain

// Nombres de eventos push entregados a un grupo de conexiones.
const (
	EventReceiveMessage = "ReceiveMessage"
	EventReceiveTyping  = "ReceiveTyping"
)

// Tipos de frame que el cliente envía por el canal en vivo.
const (
	FrameSendTyping = "SendTyping"
)
