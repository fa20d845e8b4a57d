// Пакет session — разрешение идентичности сессии из клиентского токена.
// Валидирует RS256 JWT сервиса аутентификации через JWKS и превращает
// его в Identity. Любой дефект токена (отсутствие, мусор, просрочка,
// неверная подпись) даёт nil — запрос продолжается как анонимный,
// решение об отказе принимает уровень авторизации.
package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/dronophaeton/blooddon/admin-module/internal/domain/rbac"
)

// DefaultCookieName — имя cookie с токеном сессии.
const DefaultCookieName = "authToken"

// Identity — разрешённая идентичность сессии.
// Формируется заново на каждый запрос, нигде не кэшируется.
type Identity struct {
	// SubjectID — идентификатор пользователя (claim _id)
	SubjectID string
	// Username — имя пользователя
	Username string
	// Email — электронная почта
	Email string
	// Role — роль из токена (закрытое множество rbac)
	Role rbac.Role
	// IssuedAt — время выпуска токена
	IssuedAt time.Time
	// ExpiresAt — время истечения токена
	ExpiresAt time.Time
}

// Subject возвращает субъект для проверки прав.
// nil Identity даёт nil Subject — неаутентифицированный запрос.
func (id *Identity) Subject() *rbac.Subject {
	if id == nil {
		return nil
	}
	return &rbac.Subject{ID: id.SubjectID, Role: id.Role}
}

// tokenClaims — raw claims токена сервиса аутентификации.
type tokenClaims struct {
	jwt.RegisteredClaims
	// UserID — идентификатор пользователя (claim _id).
	UserID string `json:"_id"`
	// Username — имя пользователя.
	Username string `json:"username"`
	// Email — электронная почта.
	Email string `json:"email"`
	// Role — роль пользователя (User, Admin).
	Role string `json:"role"`
}

// Resolver — резолвер идентичности по JWT через JWKS.
type Resolver struct {
	jwks       keyfunc.Keyfunc
	logger     *slog.Logger
	issuer     string
	cookieName string
	jwtLeeway  time.Duration
}

// NewResolver создаёт резолвер с JWKS сервиса аутентификации.
// jwksURL — URL к JWKS endpoint.
// caCertPath — опциональный путь к CA-сертификату для TLS.
// issuer — ожидаемый issuer JWT (пустой — не проверяется).
// cookieName — имя cookie с токеном (AM_SESSION_COOKIE).
// jwksClientTimeout — таймаут HTTP-клиента JWKS (AM_JWKS_CLIENT_TIMEOUT).
// jwksRefreshInterval — интервал обновления ключей (AM_JWKS_REFRESH_INTERVAL).
// jwtLeeway — допустимое отклонение времени при проверке JWT (AM_JWT_LEEWAY).
func NewResolver(
	jwksURL string,
	caCertPath string,
	issuer string,
	cookieName string,
	jwksClientTimeout time.Duration,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*Resolver, error) {
	// HTTP-клиент для JWKS (с кастомным CA или стандартный)
	httpClient := http.DefaultClient
	if caCertPath != "" {
		var err error
		httpClient, err = httpClientWithCA(caCertPath, jwksClientTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", caCertPath, err)
		}
		logger.Info("CA-сертификат для JWKS добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	// JWKS Storage с фоновым обновлением.
	// NoErrorReturnFirstHTTPReq — стартуем даже если auth service ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &Resolver{
		jwks:       k,
		logger:     logger.With(slog.String("component", "session_resolver")),
		issuer:     issuer,
		cookieName: cookieName,
		jwtLeeway:  jwtLeeway,
	}, nil
}

// NewResolverWithKeyfunc создаёт резолвер с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewResolverWithKeyfunc(
	kf keyfunc.Keyfunc,
	issuer string,
	cookieName string,
	logger *slog.Logger,
) *Resolver {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Resolver{
		jwks:       kf,
		logger:     logger.With(slog.String("component", "session_resolver")),
		issuer:     issuer,
		cookieName: cookieName,
	}
}

// CookieName возвращает имя cookie, из которой резолвер читает токен.
func (rs *Resolver) CookieName() string {
	return rs.cookieName
}

// Resolve извлекает и валидирует токен запроса.
// Источники по порядку: cookie (authToken), заголовок Authorization Bearer.
// Любой дефект даёт nil без ошибки.
func (rs *Resolver) Resolve(ctx context.Context, r *http.Request) *Identity {
	token := rs.extractToken(r)
	if token == "" {
		return nil
	}
	return rs.ResolveToken(ctx, token)
}

// extractToken достаёт строку токена из запроса.
// Пустая строка — credential отсутствует.
func (rs *Resolver) extractToken(r *http.Request) string {
	if c, err := r.Cookie(rs.cookieName); err == nil && c.Value != "" {
		return c.Value
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// ResolveToken валидирует строку токена и формирует Identity.
// Возвращает nil при любом дефекте: неверная подпись, просрочка,
// отсутствие _id, мусор вместо JWT.
func (rs *Resolver) ResolveToken(ctx context.Context, tokenString string) *Identity {
	rawClaims := &tokenClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(rs.jwtLeeway),
	}
	if rs.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(rs.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, rawClaims, rs.jwks.KeyfuncCtx(ctx), parserOpts...)
	if err != nil {
		rs.logger.Debug("JWT валидация не пройдена",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !token.Valid {
		return nil
	}

	if rawClaims.UserID == "" {
		rs.logger.Debug("В токене отсутствует claim _id")
		return nil
	}

	id := &Identity{
		SubjectID: rawClaims.UserID,
		Username:  rawClaims.Username,
		Email:     rawClaims.Email,
		Role:      rbac.ParseRole(rawClaims.Role),
	}
	if rawClaims.IssuedAt != nil {
		id.IssuedAt = rawClaims.IssuedAt.Time
	}
	if rawClaims.ExpiresAt != nil {
		id.ExpiresAt = rawClaims.ExpiresAt.Time
	}
	return id
}

// httpClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
// timeout — таймаут HTTP-запросов.
func httpClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: caCertPool,
			},
		},
	}, nil
}

// --- ReadinessChecker для сервиса аутентификации ---

// AuthReadinessChecker — проверка доступности auth service через JWKS.
type AuthReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewAuthReadinessChecker создаёт checker доступности auth service.
// readinessTimeout — таймаут проверки готовности.
func NewAuthReadinessChecker(jwksURL, caCertPath string, readinessTimeout time.Duration) (*AuthReadinessChecker, error) {
	client := &http.Client{Timeout: readinessTimeout}
	if caCertPath != "" {
		var err error
		client, err = httpClientWithCA(caCertPath, readinessTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA для readiness checker: %w", err)
		}
	}

	return &AuthReadinessChecker{
		jwksURL: jwksURL,
		client:  client,
	}, nil
}

const statusFail = "fail"

// CheckReady проверяет доступность JWKS endpoint.
func (a *AuthReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, a.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return statusFail, fmt.Sprintf("JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("JWKS вернул статус %d", resp.StatusCode)
	}

	// Проверяем, что ответ — валидный JSON с ключами
	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("JWKS: невалидный JSON: %v", err)
	}

	if len(jwksResp.Keys) == 0 {
		return "degraded", "JWKS: нет ключей"
	}

	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}
