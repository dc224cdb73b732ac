package domain

import (
	"time"

	"github.com/google/uuid"
)

// Folder: узел дерева папок. ParentID == nil означает папку верхнего уровня.
// FileCount и SizeBytes учитывают только файлы, лежащие непосредственно в папке.
type Folder struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	ParentID  *uuid.UUID `json:"parent_id" db:"parent_id"`
	OwnerID   string     `json:"owner_id" db:"owner_id"`
	FileCount int64      `json:"file_count" db:"file_count"`
	SizeBytes int64      `json:"size_bytes" db:"size_bytes"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

type FolderContent struct {
	Folder  *Folder  `json:"folder,omitempty"`
	Folders []Folder `json:"subfolders"`
	Files   []File   `json:"files"`
}

// SameParent сравнивает два nullable-идентификатора родителя.
func SameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
