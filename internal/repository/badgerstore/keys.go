package badgerstore

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// Пространства ключей
//
//	u:<user>                               User (JSON)
//	d:<folder>                             Folder (JSON)
//	dn:<owner>\x00<parent>\x00<name>       id папки (индекс уникальности имени)
//	dc:<owner>\x00<parent>\x00<folder>     пусто (дети папки)
//	f:<file>                               File (JSON)
//	fi:<owner>\x00<folder>\x00<file>       пусто (файлы папки)
//	fs:<owner>\x00<name>\x00<file>         пусто (поиск по имени)
//	s:<link>                               ShareLink (JSON)
//	st:<token>                             id ссылки
//	sf:<file>\x00<link>                    пусто (ссылки файла)
//	so:<owner>\x00<link>                   пусто (ссылки владельца)
//	a:<ts><entry>                          ActivityLogEntry (JSON)
//	aa:<actor>\x00<ts><entry>              ActivityLogEntry (JSON)
//
// Корень дерева папок кодируется как "-". ts содержит UnixNano в big-endian,
// поэтому лексикографический порядок совпадает с хронологическим.

const (
	prefixUser         = "u:"
	prefixFolder       = "d:"
	prefixFolderName   = "dn:"
	prefixFolderChild  = "dc:"
	prefixFile         = "f:"
	prefixFileInFolder = "fi:"
	prefixFileName     = "fs:"
	prefixLink         = "s:"
	prefixLinkToken    = "st:"
	prefixLinkFile     = "sf:"
	prefixLinkOwner    = "so:"
	prefixActivity     = "a:"
	prefixActorLog     = "aa:"

	sep  = "\x00"
	root = "-"
)

func join(prefix string, parts ...string) []byte {
	var b bytes.Buffer
	b.WriteString(prefix)
	for i, p := range parts {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(p)
	}
	return b.Bytes()
}

func parentPart(id *uuid.UUID) string {
	if id == nil {
		return root
	}
	return id.String()
}

func keyUser(id string) []byte { return join(prefixUser, id) }

func keyFolder(id uuid.UUID) []byte { return join(prefixFolder, id.String()) }

func keyFolderName(owner string, parent *uuid.UUID, name string) []byte {
	return join(prefixFolderName, owner, parentPart(parent), name)
}

func keyFolderChild(owner string, parent *uuid.UUID, id uuid.UUID) []byte {
	return join(prefixFolderChild, owner, parentPart(parent), id.String())
}

func keyFolderChildPrefix(owner string, parent *uuid.UUID) []byte {
	return join(prefixFolderChild, owner, parentPart(parent), "")
}

func keyFile(id uuid.UUID) []byte { return join(prefixFile, id.String()) }

func keyFileInFolder(owner string, folder *uuid.UUID, id uuid.UUID) []byte {
	return join(prefixFileInFolder, owner, parentPart(folder), id.String())
}

func keyFileInFolderPrefix(owner string, folder *uuid.UUID) []byte {
	return join(prefixFileInFolder, owner, parentPart(folder), "")
}

func keyFileName(owner, name string, id uuid.UUID) []byte {
	return join(prefixFileName, owner, name, id.String())
}

func keyFileNamePrefix(owner string) []byte {
	return join(prefixFileName, owner, "")
}

func keyLink(id uuid.UUID) []byte { return join(prefixLink, id.String()) }

func keyLinkToken(token string) []byte { return join(prefixLinkToken, token) }

func keyLinkFile(fileID, linkID uuid.UUID) []byte {
	return join(prefixLinkFile, fileID.String(), linkID.String())
}

func keyLinkFilePrefix(fileID uuid.UUID) []byte {
	return join(prefixLinkFile, fileID.String(), "")
}

func keyLinkOwner(owner string, linkID uuid.UUID) []byte {
	return join(prefixLinkOwner, owner, linkID.String())
}

func keyLinkOwnerPrefix(owner string) []byte {
	return join(prefixLinkOwner, owner, "")
}

func stamp(t time.Time, id uuid.UUID) string {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(t.UnixNano()))
	return string(ts[:]) + id.String()
}

func keyActivity(t time.Time, id uuid.UUID) []byte {
	return join(prefixActivity, stamp(t, id))
}

func keyActorLog(actor string, t time.Time, id uuid.UUID) []byte {
	return join(prefixActorLog, actor, stamp(t, id))
}

func keyActorLogPrefix(actor string) []byte {
	return join(prefixActorLog, actor, "")
}

// lastID извлекает UUID из хвоста ключа индекса.
func lastID(key []byte) (uuid.UUID, error) {
	if i := bytes.LastIndexByte(key, sep[0]); i >= 0 {
		key = key[i+1:]
	}
	return uuid.ParseBytes(key)
}
