package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"kurodrive/internal/auth"
	"kurodrive/internal/service"
)

type ShareHandler struct {
	responder
	shareService *service.ShareService
}

func NewShareHandler(shareService *service.ShareService, rs responder) *ShareHandler {
	return &ShareHandler{responder: rs, shareService: shareService}
}

type createShareRequest struct {
	FileID   uuid.UUID `json:"file_id"`
	Password *string   `json:"password"`
	TTLHours *int      `json:"ttl_hours"`
}

type accessRequest struct {
	Password *string `json:"password"`
}

func (h *ShareHandler) CreateShare(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var req createShareRequest
	if err := decode(r, &req, false); err != nil {
		h.Error(w, r, err)
		return
	}

	link, err := h.shareService.CreateShare(r.Context(), p, service.IssueInput{
		FileID:   req.FileID,
		Password: req.Password,
		TTLHours: req.TTLHours,
		SourceIP: clientIP(r),
	})
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, link)
}

func (h *ShareHandler) GetUserShares(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	links, err := h.shareService.GetUserShares(r.Context(), p.UserID)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, links)
}

func (h *ShareHandler) DeleteShare(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	if err := h.shareService.DeleteShare(r.Context(), p, id, clientIP(r)); err != nil {
		h.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSharedResource: публичный эндпоинт, токен в пути.
func (h *ShareHandler) GetSharedResource(w http.ResponseWriter, r *http.Request) {
	info, err := h.shareService.GetSharedResource(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, info)
}

// DownloadShared: публичный эндпоинт. Пароль передаётся в теле запроса.
func (h *ShareHandler) DownloadShared(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if err := decode(r, &req, true); err != nil {
		h.Error(w, r, err)
		return
	}

	file, data, err := h.shareService.DownloadShared(r.Context(), chi.URLParam(r, "token"), req.Password, clientIP(r))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	writeContent(w, file, data, "attachment")
}
