package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SendRateWindowSeconds int `env:"SEND_RATE_WINDOW_SECONDS" envDefault:"10"`
	SendRateMax           int `env:"SEND_RATE_MAX" envDefault:"20"`

	AttachmentDriver    string `env:"ATTACHMENT_DRIVER" envDefault:"local"`
	AttachmentDir       string `env:"ATTACHMENT_DIR" envDefault:"./uploads/messages"`
	AttachmentURLPrefix string `env:"ATTACHMENT_URL_PREFIX" envDefault:"/uploads/messages"`
	AWSRegion           string `env:"AWS_REGION"`
	AWSBucket           string `env:"AWS_BUCKET"`
	AWSAccessKeyID      string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey  string `env:"AWS_SECRET_ACCESS_KEY"`

	DefaultAvatar   string `env:"DEFAULT_AVATAR" envDefault:"/assets/user.png"`
	DisplayTimezone string `env:"DISPLAY_TIMEZONE" envDefault:"UTC"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	WSAllowedOrigins   []string `env:"WS_ALLOWED_ORIGINS" envSeparator:","`

	// Usado solo por cmd/cli_chat.
	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.AttachmentDriver = strings.ToLower(strings.TrimSpace(cfg.AttachmentDriver))
	return &cfg, nil
}

// Location resuelve la zona horaria usada para formatear horas y fechas.
// Un valor inválido cae a UTC.
func (c *Config) Location() *time.Location {
	if c == nil || strings.TrimSpace(c.DisplayTimezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) SendRateWindow() time.Duration {
	return time.Duration(c.SendRateWindowSeconds) * time.Second
}
