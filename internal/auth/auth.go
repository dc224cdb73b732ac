package auth

import (
	"context"
	"net/http"
	"strings"

	"kurodrive/internal/domain"
	"kurodrive/internal/logging"
)

type principalKey struct{}

// WithPrincipal кладёт пользователя в контекст запроса.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}

// AccountEnsurer заводит учётную запись квоты при первом запросе пользователя
// и возвращает сохранённую запись.
type AccountEnsurer interface {
	EnsureAccount(ctx context.Context, p domain.Principal) (*domain.User, error)
}

// ErrorWriter отдаёт ошибку клиенту в формате транспортного слоя.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

type Middleware struct {
	tokens   *Tokens
	accounts AccountEnsurer
	writeErr ErrorWriter
	logger   logging.Logger
}

func NewMiddleware(tokens *Tokens, accounts AccountEnsurer, writeErr ErrorWriter, logger logging.Logger) *Middleware {
	return &Middleware{
		tokens:   tokens,
		accounts: accounts,
		writeErr: writeErr,
		logger:   logger.With("component", "auth"),
	}
}

// VerifyToken достаёт bearer-токен из заголовка Authorization и проверяет его.
func (m *Middleware) VerifyToken(r *http.Request) (domain.Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return domain.Principal{}, ErrInvalidToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return domain.Principal{}, ErrInvalidToken
	}
	return m.tokens.ParseToken(strings.TrimSpace(token))
}

// Authenticate пропускает только запросы с действительным токеном.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := m.VerifyToken(r)
		if err != nil {
			m.logger.Debug(r.Context(), "request rejected", "path", r.URL.Path, "error", err)
			m.writeErr(w, r, err)
			return
		}
		u, err := m.accounts.EnsureAccount(r.Context(), p)
		if err != nil {
			m.writeErr(w, r, err)
			return
		}
		// Роль из токена действует только при создании учётной записи,
		// дальше ею управляет администратор.
		if u != nil && u.Role.Valid() {
			p.Role = u.Role
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireAdmin ставится после Authenticate.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			m.writeErr(w, r, domain.ErrUnauthorized)
			return
		}
		if !p.IsAdmin() {
			m.writeErr(w, r, domain.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
