package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"kurodrive/internal/auth"
	"kurodrive/internal/service"
)

type FolderHandler struct {
	responder
	folderService *service.FolderService
}

func NewFolderHandler(folderService *service.FolderService, rs responder) *FolderHandler {
	return &FolderHandler{responder: rs, folderService: folderService}
}

type createFolderRequest struct {
	Name     string     `json:"name"`
	ParentID *uuid.UUID `json:"parent_id"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type moveFolderRequest struct {
	ParentID *uuid.UUID `json:"parent_id"`
}

func (h *FolderHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var req createFolderRequest
	if err := decode(r, &req, false); err != nil {
		h.Error(w, r, err)
		return
	}

	folder, err := h.folderService.CreateFolder(r.Context(), p, req.Name, req.ParentID, clientIP(r))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, folder)
}

// GetFolderContent отдаёт содержимое папки {id} или верхнего уровня, если id не указан.
func (h *FolderHandler) GetFolderContent(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var parentID *uuid.UUID
	if chi.URLParam(r, "id") != "" {
		id, err := pathUUID(r, "id")
		if err != nil {
			h.Error(w, r, err)
			return
		}
		parentID = &id
	}

	content, err := h.folderService.GetFolderContent(r.Context(), p.UserID, parentID)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, content)
}

func (h *FolderHandler) RenameFolder(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}
	var req renameRequest
	if err := decode(r, &req, false); err != nil {
		h.Error(w, r, err)
		return
	}

	folder, err := h.folderService.RenameFolder(r.Context(), p, id, req.Name, clientIP(r))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, folder)
}

func (h *FolderHandler) MoveFolder(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}
	var req moveFolderRequest
	if err := decode(r, &req, false); err != nil {
		h.Error(w, r, err)
		return
	}

	folder, err := h.folderService.MoveFolder(r.Context(), p, id, req.ParentID, clientIP(r))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, folder)
}

// DeleteFolder удаляет папку каскадно и возвращает отчёт.
func (h *FolderHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	// При строгой политике ошибка блобов приходит вместе с отчётом:
	// записи уже удалены, клиент получает store_failure.
	report, err := h.folderService.DeleteFolder(r.Context(), p, id, clientIP(r))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, report)
}
