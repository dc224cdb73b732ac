package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"kurodrive/internal/auth"
	"kurodrive/internal/logging"
	"kurodrive/internal/service"
)

// Services: всё, что нужно роутеру от слоя сервисов.
type Services struct {
	Files    *service.FileService
	Folders  *service.FolderService
	Shares   *service.ShareService
	Quota    *service.StorageQuotaService
	Activity *service.ActivityService
	Admin    *service.AdminService
}

type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	MaxUploadSize  int64
	// Metrics отдаётся на /metrics, если задан.
	Metrics http.Handler
}

// ErrorWriter возвращает функцию, которой middleware аутентификации
// сообщает об ошибках в том же формате, что и хендлеры.
func ErrorWriter(logger logging.Logger) auth.ErrorWriter {
	return responder{logger: logger}.Error
}

func NewRouter(svc Services, authMW *auth.Middleware, opts Options, logger logging.Logger) http.Handler {
	logger = logger.With("component", "http")
	rs := responder{logger: logger}

	files := NewFileHandler(svc.Files, opts.MaxUploadSize, rs)
	folders := NewFolderHandler(svc.Folders, rs)
	shares := NewShareHandler(svc.Shares, rs)
	quota := NewStorageQuotaHandler(svc.Quota, svc.Activity, rs)
	admin := NewAdminHandler(svc.Admin, svc.Activity, rs)

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Minute
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		rs.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		// Публичные ссылки доступны без токена.
		r.Route("/shared/{token}", func(r chi.Router) {
			r.Get("/", shares.GetSharedResource)
			r.Post("/download", shares.DownloadShared)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMW.Authenticate)

			r.Route("/folders", func(r chi.Router) {
				r.Get("/", folders.GetFolderContent)
				r.Post("/", folders.CreateFolder)
				r.Get("/{id}", folders.GetFolderContent)
				r.Put("/{id}/rename", folders.RenameFolder)
				r.Put("/{id}/move", folders.MoveFolder)
				r.Delete("/{id}", folders.DeleteFolder)
			})

			r.Route("/files", func(r chi.Router) {
				r.Get("/", files.GetFiles)
				r.Post("/", files.UploadFile)
				r.Get("/search", files.SearchFiles)
				r.Get("/{id}", files.GetFileInfo)
				r.Get("/{id}/content", files.DownloadFile)
				r.Get("/{id}/preview", files.PreviewFile)
				r.Put("/{id}/rename", files.RenameFile)
				r.Put("/{id}/move", files.MoveFile)
				r.Delete("/{id}", files.DeleteFile)
			})

			r.Route("/shares", func(r chi.Router) {
				r.Get("/", shares.GetUserShares)
				r.Post("/", shares.CreateShare)
				r.Delete("/{id}", shares.DeleteShare)
			})

			r.Get("/quota", quota.GetQuotaInfo)
			r.Get("/activity", quota.GetActivity)

			r.Route("/admin", func(r chi.Router) {
				r.Use(authMW.RequireAdmin)
				r.Get("/users", admin.ListUsers)
				r.Put("/users/{id}", admin.UpdateUser)
				r.Delete("/users/{id}", admin.DeleteUser)
				r.Put("/users/{id}/limit", admin.UpdateQuotaLimit)
				r.Get("/activity", admin.GetActivity)
				r.Get("/stats", admin.Stats)
			})
		})
	})

	return r
}

// requestLogger пишет одну строку на запрос через общий логгер.
func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info(r.Context(), "request",
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
