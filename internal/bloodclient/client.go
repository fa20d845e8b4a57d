// Пакет bloodclient — HTTP-клиент Blood Service.
// Поддерживает TLS с кастомным CA (AM_BLOOD_SERVICE_CA_CERT_PATH).
// Операции: список заявок, принятие/отклонение заявки, список
// пользователей, смена роли, выход из сессии.
package bloodclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dronophaeton/blooddon/admin-module/internal/domain/model"
)

// ErrDecode — ответ Blood Service не разбирается как ожидаемый JSON.
var ErrDecode = errors.New("ответ blood service не разбирается")

// BackendError — ошибка, возвращённая Blood Service.
// Message берётся из тела ответа {"message": "..."}; если тело не
// разбирается, остаётся общий текст со статусом.
type BackendError struct {
	// StatusCode — HTTP-статус ответа
	StatusCode int
	// Message — сообщение backend или общий текст
	Message string
}

// Error реализует error.
func (e *BackendError) Error() string {
	return fmt.Sprintf("blood service: статус %d: %s", e.StatusCode, e.Message)
}

// Client — HTTP-клиент Blood Service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// New создаёт клиент Blood Service.
// baseURL — базовый URL (AM_BLOOD_SERVICE_URL).
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// timeout — таймаут HTTP-запросов.
func New(baseURL, caCertPath string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	httpClient := &http.Client{Timeout: timeout}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата Blood Service: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат Blood Service добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger.With(slog.String("component", "blood_client")),
	}, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// dataEnvelope — конверт ответов Blood Service: {"data": [...]}.
type dataEnvelope[T any] struct {
	Data []T `json:"data"`
}

// GetAllRequests запрашивает все заявки на кровь.
// GET /bloodrequest/getAllRequest.
func (c *Client) GetAllRequests(ctx context.Context) ([]model.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/bloodrequest/getAllRequest", nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса GetAllRequests: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос GetAllRequests: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, backendError(resp)
	}

	var envelope dataEnvelope[model.Request]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: GetAllRequests: %v", ErrDecode, err)
	}

	return envelope.Data, nil
}

// acceptRequestBody — тело POST /acceptRequest/acceptRequest.
type acceptRequestBody struct {
	RequestID  string `json:"requestId"`
	UserID     string `json:"userId"`
	IsAccepted bool   `json:"isAccepted"`
}

// AcceptRequest отправляет решение по заявке.
// POST /acceptRequest/acceptRequest {requestId, userId, isAccepted}.
// isAccepted=true — принятие, false — отклонение.
func (c *Client) AcceptRequest(ctx context.Context, requestID, ownerUserID string, isAccepted bool) error {
	body := acceptRequestBody{
		RequestID:  requestID,
		UserID:     ownerUserID,
		IsAccepted: isAccepted,
	}
	return c.postJSON(ctx, "/acceptRequest/acceptRequest", body, nil)
}

// GetAllUsers запрашивает список пользователей платформы.
// POST /acceptRequest/getAllUser с Authorization: Bearer <subjectID>.
// Blood Service идентифицирует администратора по его идентификатору
// в заголовке — так устроен его контракт.
func (c *Client) GetAllUsers(ctx context.Context, subjectID string) ([]model.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/acceptRequest/getAllUser", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса GetAllUsers: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+subjectID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос GetAllUsers: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, backendError(resp)
	}

	var envelope dataEnvelope[model.User]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: GetAllUsers: %v", ErrDecode, err)
	}

	return envelope.Data, nil
}

// changeRoleBody — тело POST /acceptRequest/changeRole.
type changeRoleBody struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// ChangeRole меняет роль пользователя.
// POST /acceptRequest/changeRole {userId, role}.
func (c *Client) ChangeRole(ctx context.Context, userID, role string) error {
	return c.postJSON(ctx, "/acceptRequest/changeRole", changeRoleBody{UserID: userID, Role: role}, nil)
}

// Logout завершает сессию на стороне Blood Service.
// POST /users/logout с cookie сессии.
func (c *Client) Logout(ctx context.Context, cookieName, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users/logout", http.NoBody)
	if err != nil {
		return fmt.Errorf("создание запроса Logout: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: cookieName, Value: token})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос Logout: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return backendError(resp)
	}
	return nil
}

// postJSON отправляет POST с JSON-телом и декодирует ответ в out (если не nil).
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("сериализация тела %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("создание запроса %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос %s: %w", path, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return backendError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
		}
	}
	return nil
}

// isSuccess — 2xx статус.
func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

// backendError извлекает {"message": ...} из тела ответа с ошибкой.
func backendError(resp *http.Response) error {
	be := &BackendError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("неожиданный статус %d", resp.StatusCode),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return be
	}

	var msg struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &msg); err == nil && msg.Message != "" {
		be.Message = msg.Message
	}
	return be
}

// --- ReadinessChecker для Blood Service ---

// ReadinessChecker — проверка доступности Blood Service.
type ReadinessChecker struct {
	client *Client
}

// NewReadinessChecker создаёт checker доступности Blood Service.
func NewReadinessChecker(client *Client) *ReadinessChecker {
	return &ReadinessChecker{client: client}
}

// CheckReady проверяет, отвечает ли Blood Service на список заявок.
func (r *ReadinessChecker) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	requests, err := r.client.GetAllRequests(ctx)
	if err != nil {
		return "fail", fmt.Sprintf("Blood Service недоступен: %v", err)
	}
	return "ok", fmt.Sprintf("Blood Service доступен, заявок: %d", len(requests))
}
