package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"kurodrive/internal/auth"
	"kurodrive/internal/domain"
	"kurodrive/internal/service"
)

// DefaultMaxUploadSize ограничивает тело запроса загрузки.
const DefaultMaxUploadSize = 512 << 20

type FileHandler struct {
	responder
	fileService   *service.FileService
	maxUploadSize int64
}

func NewFileHandler(fileService *service.FileService, maxUploadSize int64, rs responder) *FileHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &FileHandler{responder: rs, fileService: fileService, maxUploadSize: maxUploadSize}
}

type moveFileRequest struct {
	FolderID *uuid.UUID `json:"folder_id"`
}

// UploadFile принимает multipart-форму: поле file и необязательное folder_id.
func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(w, r, domain.Invalidf("upload is larger than %d bytes", tooLarge.Limit))
			return
		}
		h.Error(w, r, domain.Invalidf("malformed multipart form: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	part, header, err := r.FormFile("file")
	if err != nil {
		h.Error(w, r, domain.Invalidf("file field is required"))
		return
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		h.Error(w, r, domain.Invalidf("failed to read upload: %v", err))
		return
	}

	in := service.UploadInput{
		Name:     header.Filename,
		Size:     int64(len(data)),
		Data:     data,
		SourceIP: clientIP(r),
	}
	if raw := r.FormValue("folder_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.Error(w, r, domain.Invalidf("invalid folder_id"))
			return
		}
		in.FolderID = &id
	}

	file, err := h.fileService.UploadFile(r.Context(), p, in)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, file)
}

// GetFiles отдаёт файлы папки folder_id или верхнего уровня.
func (h *FileHandler) GetFiles(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	folderID, err := queryUUID(r, "folder_id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	files, err := h.fileService.GetFilesByFolder(r.Context(), p.UserID, folderID)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, files)
}

func (h *FileHandler) SearchFiles(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	files := []domain.File{}
	for f, err := range h.fileService.SearchFiles(r.Context(), p.UserID, r.URL.Query().Get("q")) {
		if err != nil {
			h.Error(w, r, err)
			return
		}
		files = append(files, f)
	}
	h.JSON(w, http.StatusOK, files)
}

func (h *FileHandler) GetFileInfo(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	file, err := h.fileService.GetFileInfo(r.Context(), p.UserID, id)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, file)
}

func (h *FileHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	file, data, err := h.fileService.DownloadFile(r.Context(), p, id, clientIP(r))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	writeContent(w, file, data, "attachment")
}

// PreviewFile отдаёт файл для показа в браузере.
func (h *FileHandler) PreviewFile(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	file, data, err := h.fileService.PreviewFile(r.Context(), p, id)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	writeContent(w, file, data, "inline")
}

func (h *FileHandler) RenameFile(w http.ResponseWriter, r *http.Request) {
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

	file, err := h.fileService.RenameFile(r.Context(), p, id, req.Name, clientIP(r))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, file)
}

func (h *FileHandler) MoveFile(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}
	var req moveFileRequest
	if err := decode(r, &req, false); err != nil {
		h.Error(w, r, err)
		return
	}

	file, err := h.fileService.MoveFile(r.Context(), p, id, req.FolderID, clientIP(r))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, file)
}

func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	if err := h.fileService.DeleteFile(r.Context(), p, id, clientIP(r)); err != nil {
		h.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeContent пишет содержимое файла. disposition: "attachment" или "inline".
// Браузер не должен угадывать тип поверх сохранённого MIME.
func writeContent(w http.ResponseWriter, file *domain.File, data []byte, disposition string) {
	contentType := file.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": file.Name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
