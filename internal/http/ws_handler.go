package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dmchat/internal/realtime"
)

// WSHandler sube el request a websocket y lo deja en el grupo del usuario
// autenticado hasta que el cliente cierra.
type WSHandler struct {
	logger   *zap.Logger
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(logger *zap.Logger, hub *realtime.Hub, allowedOrigins []string) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		logger: logger,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// Connect maneja GET /ws.
func (h *WSHandler) Connect(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade ya escribió la respuesta de error.
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn := realtime.NewWSConn(ws, userID, h.logger)
	if err := conn.Serve(h.hub); err != nil {
		h.logger.Info("websocket refused", zap.String("user_id", userID), zap.Error(err))
	}
}

// originChecker acepta los orígenes listados; "*" acepta todos. Con la
// lista vacía exige que el Origin coincida con el Host.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			set[strings.ToLower(o)] = struct{}{}
		}
	}
	_, allowAll := set["*"]

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		if len(set) > 0 {
			_, ok := set[strings.ToLower(strings.TrimRight(origin, "/"))]
			return ok
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
