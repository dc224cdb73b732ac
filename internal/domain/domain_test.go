package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"not found", ErrNotFound, KindNotFound},
		{"parent not found", ErrParentNotFound, KindNotFound},
		{"wrapped file not found", fmt.Errorf("share: %w", ErrFileNotFound), KindNotFound},
		{"quota", fmt.Errorf("reserve: %w", ErrQuotaExceeded), KindQuotaExceeded},
		{"duplicate", ErrDuplicateName, KindDuplicateName},
		{"expired", ErrExpired, KindExpired},
		{"wrong password", ErrWrongPassword, KindWrongPassword},
		{"store failure joined", fmt.Errorf("%w: %w", ErrStoreFailure, errors.New("timeout")), KindStoreFailure},
		{"invalid", Invalidf("bad %s", "name"), KindInvalidArgument},
		{"forbidden", ErrForbidden, KindForbidden},
		{"unauthorized", ErrUnauthorized, KindUnauthorized},
		{"unknown", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestContentKindOf(t *testing.T) {
	assert.Equal(t, ContentKindDocument, ContentKindOf("report.PDF"))
	assert.Equal(t, ContentKindSpreadsheet, ContentKindOf("budget.csv"))
	assert.Equal(t, ContentKindImage, ContentKindOf("cat.jpeg"))
	assert.Equal(t, ContentKindArchive, ContentKindOf("backup.tar.gz"))
	assert.Equal(t, ContentKindCode, ContentKindOf("main.py"))
	assert.Equal(t, ContentKindFile, ContentKindOf("Makefile"))
	assert.Equal(t, ContentKindFile, ContentKindOf("binary.exe"))
}

func TestNormalizeName(t *testing.T) {
	got, err := NormalizeName("  notes  ")
	require.NoError(t, err)
	assert.Equal(t, "notes", got)

	for _, bad := range []string{"", "   ", ".", "..", "a/b", `a\b`, strings.Repeat("x", MaxNameLength+1)} {
		_, err := NormalizeName(bad)
		assert.ErrorIs(t, err, ErrInvalidArgument, "name %q", bad)
	}
}

func TestShareLinkExpiredAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	link := &ShareLink{}
	assert.False(t, link.ExpiredAt(now), "link without expiry never expires")

	exp := now
	link.ExpiresAt = &exp
	assert.True(t, link.ExpiredAt(now), "expiry instant itself counts as expired")

	later := now.Add(time.Hour)
	link.ExpiresAt = &later
	assert.False(t, link.ExpiredAt(now))
}

func TestNewQuotaInfo(t *testing.T) {
	info := NewQuotaInfo(&User{StorageUsed: 256, StorageLimit: 1024})

	assert.Equal(t, int64(1024), info.TotalSpace)
	assert.Equal(t, int64(768), info.AvailableSpace)
	assert.InDelta(t, 25.0, info.UsagePercent, 0.0001)
	assert.Equal(t, "256 B of 1.0 KiB used", info.Summary)
}

func TestSameParent(t *testing.T) {
	a, b := mustUUID(t, "9b2f7c36-3f0c-4f55-9d44-7c3b0e6a1d11"), mustUUID(t, "9b2f7c36-3f0c-4f55-9d44-7c3b0e6a1d12")
	assert.True(t, SameParent(nil, nil))
	assert.False(t, SameParent(&a, nil))
	assert.True(t, SameParent(&a, &a))
	assert.False(t, SameParent(&a, &b))
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
