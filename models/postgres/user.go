package postgres

import (
	"time"
)

/*
 * 'User' mirrors the member records owned by the CRUD backend. The
 * coordinator only reads it, to resolve the username behind a gateway
 * connection's JWT.
 */
type User struct {
	Email        string    `gorm:"primaryKey;size:100;not null"`
	Username     string    `gorm:"size:50;not null;uniqueIndex"`
	PasswordHash string    `gorm:"size:255;not null"`
	FullName     string    `gorm:"size:100"`
	MemberSince  time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}
