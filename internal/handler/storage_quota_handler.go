package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kurodrive/internal/auth"
	"kurodrive/internal/service"
)

type StorageQuotaHandler struct {
	responder
	quotaService    *service.StorageQuotaService
	activityService *service.ActivityService
}

func NewStorageQuotaHandler(quotaService *service.StorageQuotaService, activityService *service.ActivityService, rs responder) *StorageQuotaHandler {
	return &StorageQuotaHandler{
		responder:       rs,
		quotaService:    quotaService,
		activityService: activityService,
	}
}

func (h *StorageQuotaHandler) GetQuotaInfo(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	info, err := h.quotaService.GetQuotaInfo(r.Context(), p.UserID)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, info)
}

// GetActivity отдаёт журнал текущего пользователя, новые записи первыми.
func (h *StorageQuotaHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	entries, err := h.activityService.ListActivity(r.Context(), p.UserID, limit)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, entries)
}

type AdminHandler struct {
	responder
	adminService    *service.AdminService
	activityService *service.ActivityService
}

func NewAdminHandler(adminService *service.AdminService, activityService *service.ActivityService, rs responder) *AdminHandler {
	return &AdminHandler{responder: rs, adminService: adminService, activityService: activityService}
}

type updateLimitRequest struct {
	Limit int64 `json:"limit"`
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	users, err := h.adminService.ListUsers(r.Context(), p)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, users)
}

func (h *AdminHandler) UpdateQuotaLimit(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var req updateLimitRequest
	if err := decode(r, &req, false); err != nil {
		h.Error(w, r, err)
		return
	}

	if err := h.adminService.UpdateUserLimit(r.Context(), p, chi.URLParam(r, "id"), req.Limit, clientIP(r)); err != nil {
		h.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var req service.UserUpdate
	if err := decode(r, &req, false); err != nil {
		h.Error(w, r, err)
		return
	}

	if err := h.adminService.UpdateUser(r.Context(), p, chi.URLParam(r, "id"), req, clientIP(r)); err != nil {
		h.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteUser удаляет пользователя со всеми данными и отдаёт отчёт каскада.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	report, err := h.adminService.DeleteUser(r.Context(), p, chi.URLParam(r, "id"), clientIP(r))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, report)
}

func (h *AdminHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	entries, err := h.activityService.ListAllActivity(r.Context(), p, limit)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, entries)
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	stats, err := h.adminService.Stats(r.Context(), p)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, stats)
}
