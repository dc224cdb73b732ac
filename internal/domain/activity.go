package domain

import (
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionCreate         Action = "create"
	ActionDelete         Action = "delete"
	ActionRename         Action = "rename"
	ActionMove           Action = "move"
	ActionUpload         Action = "upload"
	ActionDownload       Action = "download"
	ActionShare          Action = "share"
	ActionUnshare        Action = "unshare"
	ActionSharedDownload Action = "shared_download"
	ActionUpdate         Action = "update"
)

type ResourceKind string

const (
	ResourceFile   ResourceKind = "file"
	ResourceFolder ResourceKind = "folder"
	ResourceUser   ResourceKind = "user"
)

// AnonymousActor: имя актора для скачиваний по публичной ссылке.
const AnonymousActor = "Anonymous"

type ActivityLogEntry struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	ActorID      string       `json:"actor_id" db:"actor_id"`
	ActorName    string       `json:"actor_name" db:"actor_name"`
	Action       Action       `json:"action" db:"action"`
	ResourceKind ResourceKind `json:"resource_kind" db:"resource_kind"`
	ResourceName string       `json:"resource_name" db:"resource_name"`
	SourceIP     string       `json:"source_ip" db:"source_ip"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}
