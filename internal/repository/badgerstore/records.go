package badgerstore

import "kurodrive/internal/domain"

// Доменные типы скрывают служебные поля от JSON API. В базе они нужны,
// поэтому записи хранятся в обёртках.

type fileRecord struct {
	domain.File
	BlobHandle string `json:"blob_handle"`
}

func newFileRecord(f *domain.File) fileRecord {
	return fileRecord{File: *f, BlobHandle: f.BlobHandle}
}

func (r fileRecord) file() *domain.File {
	f := r.File
	f.BlobHandle = r.BlobHandle
	return &f
}

type linkRecord struct {
	domain.ShareLink
	PasswordHash *string `json:"password_hash"`
}

func newLinkRecord(l *domain.ShareLink) linkRecord {
	return linkRecord{ShareLink: *l, PasswordHash: l.PasswordHash}
}

func (r linkRecord) link() *domain.ShareLink {
	l := r.ShareLink
	l.PasswordHash = r.PasswordHash
	return &l
}
