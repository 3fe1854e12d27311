package domain

import (
	"strings"
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	Avatar       string    `json:"avatar,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DisplayName arma "nombre apellido" y cae al handle si ambos están vacíos.
func (u User) DisplayName() string {
	full := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if full == "" {
		return u.Username
	}
	return full
}

// AvatarOr devuelve el avatar del usuario o fallback si no tiene.
func (u User) AvatarOr(fallback string) string {
	if strings.TrimSpace(u.Avatar) == "" {
		return fallback
	}
	return u.Avatar
}
