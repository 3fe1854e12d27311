package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dmchat/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 4096
	sendBufferSize = 64
)

// Frame es lo que el cliente manda por el canal en vivo.
type Frame struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiverId"`
}

// WSConn adapta una conexión gorilla/websocket a Conn. Las escrituras pasan
// por un único goroutine (writePump).
type WSConn struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func NewWSConn(ws *websocket.Conn, userID string, logger *zap.Logger) *WSConn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSConn{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (c *WSConn) ID() string { return c.id }

func (c *WSConn) Send(ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- body:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSlowConsumer
	}
}

// Close corta la conexión una sola vez; llamadas siguientes no hacen nada.
func (c *WSConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		err = c.ws.Close()
	})
	return err
}

// Serve registra la conexión en el hub y bloquea leyendo frames hasta que el
// transporte se cierra. Al salir la conexión queda fuera de su grupo.
func (c *WSConn) Serve(hub *Hub) error {
	if err := hub.Connect(c.userID, c); err != nil {
		_ = c.Close()
		return err
	}
	defer func() {
		hub.Disconnect(c.userID, c.id)
		_ = c.Close()
	}()

	go c.writePump()
	c.readPump(hub)
	return nil
}

func (c *WSConn) readPump(hub *Hub) {
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("invalid websocket frame", zap.String("conn_id", c.id), zap.Error(err))
			continue
		}
		c.handleFrame(hub, frame)
	}
}

func (c *WSConn) handleFrame(hub *Hub, frame Frame) {
	switch frame.Type {
	case domain.FrameSendTyping:
		receiver := strings.TrimSpace(frame.ReceiverID)
		if receiver == "" || receiver == c.userID {
			return
		}
		hub.RelayTyping(c.userID, receiver)
	default:
		c.logger.Warn("unknown websocket frame type", zap.String("conn_id", c.id), zap.String("type", frame.Type))
	}
}

func (c *WSConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case body := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, body); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// IsClosed reporta si Close ya se ejecutó.
func (c *WSConn) IsClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
