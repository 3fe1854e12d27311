package repository

import (
	"time"

	"dmchat/internal/domain"
)

func domainUser(id, email string) domain.User {
	return domain.User{ID: id, Email: email, Username: id, CreatedAt: time.Now().UTC()}
}
