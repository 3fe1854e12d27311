package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dmchat/internal/metrics"
	"dmchat/internal/service"
)

// Pinger es lo mínimo que necesita /healthz del almacenamiento.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterOptions agrupa lo que el router toma de la configuración.
type RouterOptions struct {
	CORSAllowedOrigins []string
	// UploadsPrefix y UploadsDir sirven los adjuntos guardados en disco.
	// Vacíos si el driver es s3.
	UploadsPrefix string
	UploadsDir    string
	DB            Pinger
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	opts RouterOptions,
	jwtSvc *service.JWTService,
	userH *UserHandler,
	msgH *MessageHandler,
	wsH *WSHandler,
) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20

	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), corsMiddleware(opts.CORSAllowedOrigins))

	r.GET("/healthz", healthHandler(opts.DB))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if opts.UploadsPrefix != "" && opts.UploadsDir != "" {
		r.Static(opts.UploadsPrefix, opts.UploadsDir)
	}

	users := r.Group("/users", jsonContentTypeMiddleware())
	users.POST("", userH.CreateUser)
	users.GET("/me", JWTAuthMiddleware(jwtSvc, false), userH.Me)

	auth := r.Group("/auth", jsonContentTypeMiddleware())
	auth.POST("/login", userH.Login)
	auth.POST("/refresh", userH.RefreshToken)
	auth.POST("/logout", userH.Logout)

	messages := r.Group("/messages", jsonContentTypeMiddleware(), JWTAuthMiddleware(jwtSvc, false))
	messages.GET("/conversations", msgH.Conversations)
	messages.GET("/history/:partnerId", msgH.History)
	messages.POST("", msgH.Send)
	messages.POST("/typing", msgH.Typing)
	messages.DELETE("/:id", msgH.Delete)
	messages.GET("/unread", msgH.Unread)
	messages.GET("/partners/:id", msgH.Partner)

	r.GET("/ws", JWTAuthMiddleware(jwtSvc, true), wsH.Connect)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	cleaned := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cors.New(cfg)
		}
		if o != "" {
			cleaned = append(cleaned, o)
		}
	}
	if len(cleaned) == 0 {
		cfg.AllowAllOrigins = true
		return cors.New(cfg)
	}
	cfg.AllowOrigins = cleaned
	cfg.AllowCredentials = true
	return cors.New(cfg)
}

func healthHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
