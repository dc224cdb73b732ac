package domain

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ContentKind string

const (
	ContentKindDocument     ContentKind = "document"
	ContentKindSpreadsheet  ContentKind = "spreadsheet"
	ContentKindPresentation ContentKind = "presentation"
	ContentKindImage        ContentKind = "image"
	ContentKindVideo        ContentKind = "video"
	ContentKindAudio        ContentKind = "audio"
	ContentKindArchive      ContentKind = "archive"
	ContentKindCode         ContentKind = "code"
	ContentKindFile         ContentKind = "file"
)

var contentKinds = map[string]ContentKind{
	"pdf": ContentKindDocument, "doc": ContentKindDocument, "docx": ContentKindDocument, "txt": ContentKindDocument,
	"xls": ContentKindSpreadsheet, "xlsx": ContentKindSpreadsheet, "csv": ContentKindSpreadsheet,
	"ppt": ContentKindPresentation, "pptx": ContentKindPresentation,
	"jpg": ContentKindImage, "jpeg": ContentKindImage, "png": ContentKindImage, "gif": ContentKindImage,
	"webp": ContentKindImage, "svg": ContentKindImage,
	"mp4": ContentKindVideo, "avi": ContentKindVideo, "mov": ContentKindVideo, "mkv": ContentKindVideo,
	"mp3": ContentKindAudio, "wav": ContentKindAudio, "ogg": ContentKindAudio,
	"zip": ContentKindArchive, "rar": ContentKindArchive, "7z": ContentKindArchive,
	"tar": ContentKindArchive, "gz": ContentKindArchive,
	"js": ContentKindCode, "py": ContentKindCode, "html": ContentKindCode, "css": ContentKindCode, "json": ContentKindCode,
}

// ContentKindOf определяет вид содержимого по расширению имени файла.
// Значение носит справочный характер.
func ContentKindOf(name string) ContentKind {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if kind, ok := contentKinds[ext]; ok {
		return kind
	}
	return ContentKindFile
}

type File struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	Size        int64       `json:"size" db:"size"`
	ContentKind ContentKind `json:"content_kind" db:"content_kind"`
	MIMEType    string      `json:"mime_type" db:"mime_type"`
	FolderID    *uuid.UUID  `json:"folder_id" db:"folder_id"`
	OwnerID     string      `json:"owner_id" db:"owner_id"`
	BlobHandle  string      `json:"-" db:"blob_handle"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}
