// Package realtime mantiene los grupos de conexiones en vivo por usuario y
// empuja eventos a esos grupos.
//
// El Hub es el único dueño del mapa usuario -> conexiones. Afuera solo se lo
// direcciona por identidad de usuario (Connect, Disconnect, Push,
// RelayTyping); nunca se itera sobre conexiones crudas.
package realtime

import (
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"dmchat/internal/domain"
	"dmchat/internal/metrics"
)

var (
	ErrHubClosed     = errors.New("hub closed")
	ErrAnonymousConn = errors.New("connection has no authenticated user")
	ErrConnClosed    = errors.New("connection closed")
	ErrSlowConsumer  = errors.New("connection send buffer full")
)

// Event es el sobre que viaja al cliente: {"event": ..., "data": ...}.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Conn es una conexión de transporte ya autenticada.
type Conn interface {
	ID() string
	// Send encola el evento sin bloquear.
	Send(ev Event) error
	Close() error
}

// Pusher es la cara del Hub que usan los servicios.
type Pusher interface {
	Push(userID, event string, payload any) int
	RelayTyping(senderID, receiverID string) int
}

// Hub agrupa conexiones por usuario. Es seguro para uso concurrente.
type Hub struct {
	logger *zap.Logger

	mu     sync.RWMutex
	groups map[string]map[string]Conn
	closed bool
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger,
		groups: make(map[string]map[string]Conn),
	}
}

// Connect agrega la conexión al grupo del usuario. Un usuario puede tener
// varias conexiones simultáneas (pestañas, dispositivos).
func (h *Hub) Connect(userID string, c Conn) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrAnonymousConn
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	group, ok := h.groups[userID]
	if !ok {
		group = make(map[string]Conn)
		h.groups[userID] = group
	}
	_, existed := group[c.ID()]
	group[c.ID()] = c
	h.mu.Unlock()

	if !existed {
		metrics.ActiveConnections.Inc()
	}
	h.logger.Info("connection grouped", zap.String("user_id", userID), zap.String("conn_id", c.ID()))
	return nil
}

// Disconnect saca la conexión de su grupo. Es idempotente.
func (h *Hub) Disconnect(userID, connID string) {
	h.mu.Lock()
	group, ok := h.groups[userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := group[connID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(group, connID)
	if len(group) == 0 {
		delete(h.groups, userID)
	}
	h.mu.Unlock()

	metrics.ActiveConnections.Dec()
	h.logger.Info("connection removed", zap.String("user_id", userID), zap.String("conn_id", connID))
}

// Push entrega el payload a todas las conexiones del grupo del usuario y
// devuelve cuántas lo aceptaron. Con el grupo vacío el evento se descarta:
// no hay entrega diferida, el mensaje queda disponible por historial.
func (h *Hub) Push(userID, event string, payload any) int {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.groups[userID]))
	for _, c := range h.groups[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		metrics.Pushes.WithLabelValues(event, "dropped").Inc()
		h.logger.Debug("push dropped, user offline", zap.String("user_id", userID), zap.String("event", event))
		return 0
	}

	ev := Event{Name: event, Data: payload}
	delivered := 0
	for _, c := range targets {
		if err := c.Send(ev); err != nil {
			// Conexión lenta o ya cerrada: se la saca del grupo.
			h.logger.Warn("push failed, dropping connection",
				zap.String("user_id", userID),
				zap.String("conn_id", c.ID()),
				zap.Error(err),
			)
			h.Disconnect(userID, c.ID())
			// Close puede esperar al writer trabado; no se bloquea al emisor.
			go func(c Conn) { _ = c.Close() }(c)
			continue
		}
		delivered++
	}

	result := "delivered"
	if delivered == 0 {
		result = "dropped"
	}
	metrics.Pushes.WithLabelValues(event, result).Inc()
	return delivered
}

// RelayTyping avisa al receptor que senderID está escribiendo. Sin
// persistencia ni garantía de entrega.
func (h *Hub) RelayTyping(senderID, receiverID string) int {
	if strings.TrimSpace(senderID) == "" || strings.TrimSpace(receiverID) == "" {
		return 0
	}
	return h.Push(receiverID, domain.EventReceiveTyping, senderID)
}

// Close cierra todas las conexiones y rechaza conexiones nuevas.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	groups := h.groups
	h.groups = make(map[string]map[string]Conn)
	h.mu.Unlock()

	for userID, group := range groups {
		for _, c := range group {
			metrics.ActiveConnections.Dec()
			if err := c.Close(); err != nil {
				h.logger.Debug("close connection", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}
}
