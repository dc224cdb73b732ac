package domain

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal: пользователь, уже аутентифицированный внешним сервисом идентификации.
type Principal struct {
	UserID string
	Name   string
	Role   Role
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// User хранит состояние квоты пользователя.
// StorageUsed всегда равен сумме размеров живых файлов владельца.
type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Role         Role      `json:"role" db:"role"`
	StorageUsed  int64     `json:"storage_used" db:"storage_used"`
	StorageLimit int64     `json:"storage_limit" db:"storage_limit"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type StorageStats struct {
	TotalUsers       int64 `json:"total_users" db:"total_users"`
	TotalFolders     int64 `json:"total_folders" db:"total_folders"`
	TotalFiles       int64 `json:"total_files" db:"total_files"`
	TotalStorageUsed int64 `json:"total_storage_used" db:"total_storage_used"`
}
