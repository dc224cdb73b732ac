// Package blob хранит содержимое файлов отдельно от метаданных.
// Хранилище адресуется непрозрачными дескрипторами, которые выдаёт Put.
package blob

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"kurodrive/internal/domain"
)

var ErrBlobNotFound = fmt.Errorf("blob %w", domain.ErrNotFound)

type Store interface {
	// Put сохраняет data под новым дескриптором. Повторный Put тех же байтов
	// даёт другой дескриптор.
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, handle string) ([]byte, error)
	// Delete идемпотентен: отсутствие блоба не ошибка.
	Delete(ctx context.Context, handle string) error
}

func NewHandle() string {
	return uuid.NewString()
}

// ValidHandle отсекает дескрипторы, которые Put выдать не мог.
func ValidHandle(handle string) bool {
	_, err := uuid.Parse(handle)
	return err == nil && len(handle) == 36
}
