// identity.go — middleware разрешения идентичности сессии и авторизации.
// Резолвер вызывается на каждый запрос; nil-идентичность не прерывает
// цепочку — отказ формируют RequireAction и сами обработчики.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	apierrors "github.com/dronophaeton/blooddon/admin-module/internal/api/errors"
	"github.com/dronophaeton/blooddon/admin-module/internal/domain/rbac"
	"github.com/dronophaeton/blooddon/admin-module/internal/session"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyIdentity — разрешённая идентичность сессии в контексте запроса.
const ContextKeyIdentity contextKey = "session_identity"

// Identity возвращает middleware, разрешающий идентичность запроса.
// Валидный токен кладёт *session.Identity в контекст; любой дефект
// токена оставляет запрос анонимным — без 401 на этом уровне.
func Identity(resolver *session.Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	log := logger.With(slog.String("component", "identity_middleware"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := resolver.Resolve(r.Context(), r)
			if id != nil {
				ctx := context.WithValue(r.Context(), ContextKeyIdentity, id)
				r = r.WithContext(ctx)
			} else {
				log.Debug("Запрос без валидной идентичности",
					slog.String("path", r.URL.Path),
				)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAction возвращает middleware, требующий права на действие.
// Должен использоваться ПОСЛЕ Identity.
// Анонимный запрос — 401 UNAUTHENTICATED, недостаточная роль — 403.
func RequireAction(action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			d := rbac.Authorize(id.Subject(), action)
			if !d.Allowed {
				if d.Reason == rbac.DenyUnauthenticated {
					apierrors.Unauthenticated(w, "Требуется аутентификация")
					return
				}
				apierrors.InsufficientRole(w, "Недостаточно прав: требуется роль Admin")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFromContext извлекает идентичность из контекста запроса.
// Возвращает nil для анонимного запроса.
func IdentityFromContext(ctx context.Context) *session.Identity {
	id, _ := ctx.Value(ContextKeyIdentity).(*session.Identity)
	return id
}
