// Package client implementa el lado cliente del chat: ventanas abiertas,
// render optimista de lo enviado y el canal en vivo con reconexión.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dmchat/internal/domain"
	"dmchat/internal/service"
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
	sendFailedAlert   = "Could not send the message"
)

// Handlers son los callbacks hacia la UI. Todos son opcionales.
type Handlers struct {
	OnAlert     func(reason string)
	OnMessage   func(p domain.DeliveryPayload, rendered bool)
	OnTyping    func(senderID string)
	OnConnState func(connected bool)
}

// Session coordina API, ventanas y canal en vivo de un usuario logueado.
type Session struct {
	api        *API
	windows    *WindowSet
	dialer     *websocket.Dialer
	handlers   Handlers
	logger     *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	mu        sync.Mutex
	ws        *websocket.Conn
	nextLocal int64
}

func NewSession(api *API, handlers Handlers, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		api:        api,
		windows:    NewWindowSet(MaxOpenWindows),
		dialer:     websocket.DefaultDialer,
		handlers:   handlers,
		logger:     logger,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
}

func (s *Session) Windows() *WindowSet { return s.windows }

// Open abre la ventana del partner y carga cabecera e historial (lo que
// además marca la conversación como leída en el servidor).
func (s *Session) Open(ctx context.Context, partnerID string) error {
	partnerID = strings.TrimSpace(partnerID)
	if partnerID == "" {
		return nil
	}
	opened, evicted := s.windows.Open(partnerID)
	if evicted != "" {
		s.logger.Debug("window evicted", zap.String("partner_id", evicted))
	}
	if !opened {
		return nil
	}

	header, err := s.api.Partner(ctx, partnerID)
	if err != nil {
		header = domain.PartnerHeader{UserID: partnerID, Name: partnerID}
	}
	history, err := s.api.History(ctx, partnerID)
	s.windows.update(partnerID, func(w *Window) {
		w.Header = header
		for _, h := range history {
			w.Bubbles = append(w.Bubbles, Bubble{
				ID:       h.ID,
				Content:  h.Content,
				ImageURL: h.ImageURL,
				Own:      h.IsOwn,
				Time:     h.Time,
			})
		}
	})
	return err
}

// Send pinta el mensaje antes de llamar al servidor. Si el envío falla se
// avisa con OnAlert y la burbuja queda como está. Un envío en blanco se
// ignora: no hay burbuja ni request.
func (s *Session) Send(ctx context.Context, partnerID, content string, img *Image) (service.SendResult, error) {
	partnerID = strings.TrimSpace(partnerID)
	if img != nil && len(img.Data) == 0 {
		img = nil
	}
	text := strings.TrimSpace(content)
	if partnerID == "" || (text == "" && img == nil) {
		return service.SendResult{}, nil
	}
	if !s.windows.IsOpen(partnerID) {
		_ = s.Open(ctx, partnerID)
	}

	s.mu.Lock()
	s.nextLocal--
	localID := s.nextLocal
	s.mu.Unlock()

	if text == "" {
		text = service.ImagePlaceholder
	}
	s.windows.update(partnerID, func(w *Window) {
		w.Bubbles = append(w.Bubbles, Bubble{ID: localID, Content: text, Own: true, Pending: true})
	})

	res, err := s.api.Send(ctx, partnerID, content, img)
	if err != nil || !res.Success || res.Message == nil {
		reason := res.Error
		if reason == "" {
			reason = sendFailedAlert
		}
		s.alert(reason)
		return res, err
	}

	s.windows.update(partnerID, func(w *Window) {
		for i := range w.Bubbles {
			if w.Bubbles[i].ID == localID {
				w.Bubbles[i] = Bubble{
					ID:       res.Message.ID,
					Content:  res.Message.Content,
					ImageURL: res.Message.ImageURL,
					Own:      true,
					Time:     res.Message.Time,
				}
				return
			}
		}
	})
	return res, nil
}

// SignalTyping usa el websocket si está conectado; si no, HTTP.
func (s *Session) SignalTyping(ctx context.Context, partnerID string) error {
	s.mu.Lock()
	ws := s.ws
	if ws != nil {
		_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := ws.WriteJSON(map[string]string{"type": domain.FrameSendTyping, "receiverId": partnerID})
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	return s.api.Typing(ctx, partnerID)
}

// Run mantiene el canal en vivo hasta que ctx se cancela, reconectando con
// backoff exponencial. Un 401 corta el ciclo.
func (s *Session) Run(ctx context.Context) error {
	backoff := s.minBackoff
	for {
		connected, err := s.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		if connected {
			backoff = s.minBackoff
		}
		s.logger.Warn("live channel lost, reconnecting", zap.Duration("backoff", backoff), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

func (s *Session) connectOnce(ctx context.Context) (bool, error) {
	ws, resp, err := s.dialer.DialContext(ctx, s.api.WebsocketURL(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, ErrUnauthorized
		}
		return false, err
	}

	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()
	s.connState(true)

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.Close()
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		s.mu.Lock()
		s.ws = nil
		s.mu.Unlock()
		_ = ws.Close()
		s.connState(false)
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return true, err
		}
		s.handleEvent(data)
	}
}

func (s *Session) handleEvent(data []byte) {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("invalid live event", zap.Error(err))
		return
	}

	switch env.Event {
	case domain.EventReceiveMessage:
		var p domain.DeliveryPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			s.logger.Warn("invalid message payload", zap.Error(err))
			return
		}
		// Solo se pinta si la ventana del emisor está abierta.
		rendered := s.windows.update(p.SenderID, func(w *Window) {
			w.Typing = false
			w.Bubbles = append(w.Bubbles, Bubble{
				ID:       p.ID,
				Content:  p.Content,
				ImageURL: p.ImageURL,
				Time:     p.Time,
			})
		})
		if s.handlers.OnMessage != nil {
			s.handlers.OnMessage(p, rendered)
		}
	case domain.EventReceiveTyping:
		var sender string
		if err := json.Unmarshal(env.Data, &sender); err != nil {
			return
		}
		s.windows.update(sender, func(w *Window) { w.Typing = true })
		if s.handlers.OnTyping != nil {
			s.handlers.OnTyping(sender)
		}
	default:
		s.logger.Debug("ignored live event", zap.String("event", env.Event))
	}
}

func (s *Session) alert(reason string) {
	if s.handlers.OnAlert != nil {
		s.handlers.OnAlert(reason)
	}
}

func (s *Session) connState(connected bool) {
	if s.handlers.OnConnState != nil {
		s.handlers.OnConnState(connected)
	}
}
