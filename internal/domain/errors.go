package domain

import (
	"errors"
	"fmt"
)

// Базовые ошибки предметной области. Сравниваются через errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrQuotaExceeded   = errors.New("storage quota exceeded")
	ErrDuplicateName   = errors.New("duplicate name")
	ErrExpired         = errors.New("share link expired")
	ErrWrongPassword   = errors.New("wrong password")
	ErrStoreFailure    = errors.New("blob store failure")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
)

// Уточнённые варианты NotFound.
var (
	ErrParentNotFound = fmt.Errorf("parent folder %w", ErrNotFound)
	ErrFileNotFound   = fmt.Errorf("file %w", ErrNotFound)
)

// Kind: стабильный перечислимый вид ошибки, который видит клиент.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindDuplicateName   Kind = "duplicate_name"
	KindExpired         Kind = "expired"
	KindWrongPassword   Kind = "wrong_password"
	KindStoreFailure    Kind = "store_failure"
	KindInvalidArgument Kind = "invalid_argument"
	KindForbidden       Kind = "forbidden"
	KindUnauthorized    Kind = "unauthorized"
	KindInternal        Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrNotFound, KindNotFound},
	{ErrQuotaExceeded, KindQuotaExceeded},
	{ErrDuplicateName, KindDuplicateName},
	{ErrExpired, KindExpired},
	{ErrWrongPassword, KindWrongPassword},
	{ErrStoreFailure, KindStoreFailure},
	{ErrInvalidArgument, KindInvalidArgument},
	{ErrForbidden, KindForbidden},
	{ErrUnauthorized, KindUnauthorized},
}

// KindOf возвращает вид ошибки. Для nil возвращается пустая строка.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Invalidf оборачивает ErrInvalidArgument сообщением.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
