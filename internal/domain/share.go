package domain

import (
	"time"

	"github.com/google/uuid"
)

// ShareLink: токен публичного доступа к одному файлу.
type ShareLink struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	FileID       uuid.UUID  `json:"file_id" db:"file_id"`
	OwnerID      string     `json:"owner_id" db:"owner_id"`
	Token        string     `json:"token" db:"token"`
	PasswordHash *string    `json:"-" db:"password_hash"`
	ExpiresAt    *time.Time `json:"expires_at" db:"expires_at"`
	AccessCount  int64      `json:"access_count" db:"access_count"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

func (l *ShareLink) HasPassword() bool {
	return l.PasswordHash != nil
}

// ExpiredAt проверяет срок действия на момент now. Ссылка без срока не истекает.
func (l *ShareLink) ExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// LinkInfo: то, что видит анонимный получатель ссылки до скачивания.
type LinkInfo struct {
	FileName         string      `json:"file_name"`
	FileSize         int64       `json:"file_size"`
	ContentKind      ContentKind `json:"file_type"`
	RequiresPassword bool        `json:"requires_password"`
	ExpiresAt        *time.Time  `json:"expires_at"`
}
