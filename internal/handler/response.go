package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"kurodrive/internal/domain"
	"kurodrive/internal/logging"
)

type errorResponse struct {
	Error string      `json:"error"`
	Kind  domain.Kind `json:"kind"`
}

var statuses = map[domain.Kind]int{
	domain.KindNotFound:        http.StatusNotFound,
	domain.KindQuotaExceeded:   http.StatusRequestEntityTooLarge,
	domain.KindDuplicateName:   http.StatusConflict,
	domain.KindExpired:         http.StatusGone,
	domain.KindWrongPassword:   http.StatusUnauthorized,
	domain.KindStoreFailure:    http.StatusServiceUnavailable,
	domain.KindInvalidArgument: http.StatusBadRequest,
	domain.KindForbidden:       http.StatusForbidden,
	domain.KindUnauthorized:    http.StatusUnauthorized,
}

// StatusOf переводит ошибку предметной области в HTTP-статус.
func StatusOf(err error) int {
	if s, ok := statuses[domain.KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// responder пишет ответы в JSON. Общий для всех хендлеров.
type responder struct {
	logger logging.Logger
}

func (responder) JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Error отдаёт {error, kind}. Внутренние ошибки не раскрываются клиенту.
func (rs responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := StatusOf(err)
	msg := err.Error()
	if kind == domain.KindInternal {
		rs.logger.Error(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		msg = http.StatusText(status)
	}
	rs.JSON(w, status, errorResponse{Error: msg, Kind: kind})
}

// decode читает JSON-тело. Пустое тело допустимо, если allowEmpty.
func decode(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil:
		return nil
	case allowEmpty && errors.Is(err, io.EOF):
		return nil
	}
	return domain.Invalidf("malformed request body: %v", err)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.Invalidf("invalid %s", name)
	}
	return id, nil
}

// queryUUID разбирает необязательный идентификатор. Пустое значение: nil.
func queryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, domain.Invalidf("invalid %s", name)
	}
	return &id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Invalidf("invalid %s", name)
	}
	return n, nil
}

// clientIP возвращает адрес клиента. RemoteAddr уже исправлен middleware.RealIP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
