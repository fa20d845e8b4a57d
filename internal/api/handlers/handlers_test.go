package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dronophaeton/blooddon/admin-module/internal/api/middleware"
	"github.com/dronophaeton/blooddon/admin-module/internal/bloodclient"
	"github.com/dronophaeton/blooddon/admin-module/internal/domain/rbac"
	"github.com/dronophaeton/blooddon/admin-module/internal/service"
	"github.com/dronophaeton/blooddon/admin-module/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

// mockBackendState — изменяемое состояние мокового Blood Service.
type mockBackendState struct {
	acceptCalls []map[string]any
	roleCalls   []map[string]any
	logoutCalls int
	failAccept  bool
}

// setupMockBackend поднимает httptest-сервер в роли Blood Service.
func setupMockBackend(t *testing.T, state *mockBackendState) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /bloodrequest/getAllRequest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"req-1","bloodTypeId":"bt-1","quantity":2,"request_date":"2026-01-10","status":"Pending","hospital_name":"ГКБ №1","userId":"owner-1"},
			{"id":"req-2","bloodTypeId":"bt-2","quantity":1,"request_date":"2026-01-05","status":"Pending","hospital_name":"ГКБ №2","userId":"owner-2"},
			{"id":"req-3","bloodTypeId":"bt-1","quantity":3,"request_date":"2026-01-07","status":"Accepted","hospital_name":"ГКБ №3","userId":"owner-3"}
		]}`))
	})
	mux.HandleFunc("POST /acceptRequest/acceptRequest", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		state.acceptCalls = append(state.acceptCalls, body)
		if state.failAccept {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"заявка заблокирована"}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	})
	mux.HandleFunc("POST /acceptRequest/getAllUser", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"u-1","email":"ivanov@example.com","username":"ivanov","createdAt":"2025-11-01","role":"User"},
			{"id":"u-2","email":"petrov@example.com","username":"petrov","createdAt":"2025-10-15","role":"Admin"}
		]}`))
	})
	mux.HandleFunc("POST /acceptRequest/changeRole", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		state.roleCalls = append(state.roleCalls, body)
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	})
	mux.HandleFunc("POST /users/logout", func(w http.ResponseWriter, r *http.Request) {
		state.logoutCalls++
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// setupRouter строит роутер с теми же маршрутами, что и сервер.
func setupRouter(t *testing.T, state *mockBackendState) (*chi.Mux, *mockBackendState) {
	t.Helper()

	backend := setupMockBackend(t, state)
	logger := testLogger()

	client, err := bloodclient.New(backend.URL, "", 5*time.Second, logger)
	if err != nil {
		t.Fatalf("создание клиента Blood Service: %v", err)
	}

	moderation := service.NewModerationService(client, nil, logger)
	users := service.NewUserService(client, nil, 16, time.Minute, logger)
	health := NewHealthHandler(nil, nil, nil)
	h := NewAPIHandler(health, moderation, users, nil, client, "authToken", logger)

	r := chi.NewRouter()
	r.Get("/api/v1/session/me", h.SessionMe)
	r.Post("/api/v1/session/logout", h.SessionLogout)
	r.Route("/api/v1/moderation/requests", func(r chi.Router) {
		r.Get("/", h.ListModerationRequests)
		r.Post("/{id}/accept", h.AcceptRequest)
		r.Post("/{id}/reject", h.RejectRequest)
	})
	r.Get("/api/v1/users", h.ListUsers)
	r.Post("/api/v1/users/{id}/elevate", h.ElevateUser)
	r.Get("/api/v1/audit", h.ListAudit)
	return r, state
}

func adminIdentity() *session.Identity {
	return &session.Identity{
		SubjectID: "admin-1",
		Username:  "admin",
		Email:     "admin@example.com",
		Role:      rbac.RoleAdmin,
	}
}

// withIdentity добавляет идентичность в контекст запроса.
func withIdentity(r *http.Request, id *session.Identity) *http.Request {
	if id == nil {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), middleware.ContextKeyIdentity, id))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("разбор тела ответа: %v\n%s", err, rec.Body.String())
	}
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	e, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("ожидался конверт ошибки, получено: %s", rec.Body.String())
	}
	code, _ := e["code"].(string)
	return code
}

func TestSessionMe(t *testing.T) {
	router, _ := setupRouter(t, &mockBackendState{})

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/session/me", nil), adminIdentity())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["subjectId"] != "admin-1" {
		t.Errorf("ожидался subjectId admin-1, получен %v", body["subjectId"])
	}
	if body["role"] != "Admin" {
		t.Errorf("ожидалась роль Admin, получена %v", body["role"])
	}
	if body["email"] != "admin@example.com" {
		t.Errorf("ожидался email admin@example.com, получен %v", body["email"])
	}
}

func TestSessionMe_Anonymous(t *testing.T) {
	router, _ := setupRouter(t, &mockBackendState{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ожидался 401, получен %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "UNAUTHENTICATED" {
		t.Errorf("ожидался код UNAUTHENTICATED, получен %s", code)
	}
}

func TestSessionLogout(t *testing.T) {
	router, state := setupRouter(t, &mockBackendState{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/logout", nil)
	req.AddCookie(&http.Cookie{Name: "authToken", Value: "token-value"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("ожидался 204, получен %d", rec.Code)
	}
	if state.logoutCalls != 1 {
		t.Errorf("ожидался один вызов logout на backend, получено %d", state.logoutCalls)
	}

	// Обе cookie должны быть погашены.
	expired := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			expired[c.Name] = true
		}
	}
	for _, name := range []string{"authToken", "IsAuthenticated"} {
		if !expired[name] {
			t.Errorf("cookie %s не погашена", name)
		}
	}
}

func TestSessionLogout_NoCookie(t *testing.T) {
	router, state := setupRouter(t, &mockBackendState{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/logout", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Без cookie backend не вызывается, но ответ всё равно 204.
	if rec.Code != http.StatusNoContent {
		t.Fatalf("ожидался 204, получен %d", rec.Code)
	}
	if state.logoutCalls != 0 {
		t.Errorf("backend не должен вызываться без cookie, вызовов: %d", state.logoutCalls)
	}
}

func TestListModerationRequests_DefaultPending(t *testing.T) {
	router, _ := setupRouter(t, &mockBackendState{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/moderation/requests", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("ожидалось 2 Pending заявки, получено %d", len(data))
	}
	// Сортировка по дате подачи: req-2 (01-05) раньше req-1 (01-10).
	first, _ := data[0].(map[string]any)
	if first["id"] != "req-2" {
		t.Errorf("ожидалась req-2 первой в очереди, получена %v", first["id"])
	}
	if body["count"] != float64(2) {
		t.Errorf("ожидался count 2, получен %v", body["count"])
	}
}

func TestListModerationRequests_StatusFilter(t *testing.T) {
	router, _ := setupRouter(t, &mockBackendState{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/moderation/requests?status=Accepted", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("ожидалась 1 Accepted заявка, получено %d", len(data))
	}
}

func TestListModerationRequests_UnknownStatus(t *testing.T) {
	router, _ := setupRouter(t, &mockBackendState{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/moderation/requests?status=Weird", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидался 400, получен %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "VALIDATION_ERROR" {
		t.Errorf("ожидался код VALIDATION_ERROR, получен %s", code)
	}
}

func TestAcceptRequest(t *testing.T) {
	router, state := setupRouter(t, &mockBackendState{})

	// Сначала загружаем очередь, затем принимаем заявку.
	load := httptest.NewRequest(http.MethodGet, "/api/v1/moderation/requests", nil)
	router.ServeHTTP(httptest.NewRecorder(), load)

	req := withIdentity(
		httptest.NewRequest(http.MethodPost, "/api/v1/moderation/requests/req-1/accept", nil),
		adminIdentity(),
	)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["requestId"] != "req-1" || body["status"] != "Accepted" {
		t.Errorf("неожиданный ответ перехода: %v", body)
	}
	if len(state.acceptCalls) != 1 {
		t.Fatalf("ожидался один вызов backend, получено %d", len(state.acceptCalls))
	}
	call := state.acceptCalls[0]
	if call["requestId"] != "req-1" || call["userId"] != "owner-1" || call["isAccepted"] != true {
		t.Errorf("неожиданное тело вызова backend: %v", call)
	}
}

func TestRejectRequest_BackendFailure(t *testing.T) {
	state := &mockBackendState{failAccept: true}
	router, _ := setupRouter(t, state)

	load := httptest.NewRequest(http.MethodGet, "/api/v1/moderation/requests", nil)
	router.ServeHTTP(httptest.NewRecorder(), load)

	req := withIdentity(
		httptest.NewRequest(http.MethodPost, "/api/v1/moderation/requests/req-1/reject", nil),
		adminIdentity(),
	)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("ожидался 502, получен %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "TRANSITION_FAILED" {
		t.Errorf("ожидался код TRANSITION_FAILED, получен %s", code)
	}
}

func TestTransition_UnknownRequest(t *testing.T) {
	router, _ := setupRouter(t, &mockBackendState{})

	load := httptest.NewRequest(http.MethodGet, "/api/v1/moderation/requests", nil)
	router.ServeHTTP(httptest.NewRecorder(), load)

	req := withIdentity(
		httptest.NewRequest(http.MethodPost, "/api/v1/moderation/requests/no-such/accept", nil),
		adminIdentity(),
	)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("ожидался 409, получен %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "INVALID_TRANSITION" {
		t.Errorf("ожидался код INVALID_TRANSITION, получен %s", code)
	}
}

func TestListUsers(t *testing.T) {
	router, _ := setupRouter(t, &mockBackendState{})

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/users", nil), adminIdentity())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("ожидалось 2 пользователя, получено %d", len(data))
	}
	first, _ := data[0].(map[string]any)
	if first["email"] != "ivanov@example.com" {
		t.Errorf("ожидался email ivanov@example.com, получен %v", first["email"])
	}
}

func TestListUsers_Anonymous(t *testing.T) {
	router, _ := setupRouter(t, &mockBackendState{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ожидался 401, получен %d", rec.Code)
	}
}

func TestElevateUser(t *testing.T) {
	router, state := setupRouter(t, &mockBackendState{})

	req := withIdentity(
		httptest.NewRequest(http.MethodPost, "/api/v1/users/u-1/elevate", nil),
		adminIdentity(),
	)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["userId"] != "u-1" || body["role"] != "Admin" {
		t.Errorf("неожиданный ответ повышения: %v", body)
	}
	if len(state.roleCalls) != 1 {
		t.Fatalf("ожидался один вызов changeRole, получено %d", len(state.roleCalls))
	}
	if state.roleCalls[0]["userId"] != "u-1" || state.roleCalls[0]["role"] != "Admin" {
		t.Errorf("неожиданное тело вызова changeRole: %v", state.roleCalls[0])
	}
}

func TestListAudit_NotConfigured(t *testing.T) {
	router, _ := setupRouter(t, &mockBackendState{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("ожидался 404, получен %d", rec.Code)
	}
}

func TestHealthLive(t *testing.T) {
	health := NewHealthHandler(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	health.HealthLive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("ожидался статус ok, получен %v", body["status"])
	}
	if body["service"] != "admin-module" {
		t.Errorf("ожидался сервис admin-module, получен %v", body["service"])
	}
}

func TestHealthReady_NilCheckers(t *testing.T) {
	health := NewHealthHandler(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	health.HealthReady(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ожидался 503 при nil checker, получен %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "fail" {
		t.Errorf("ожидался статус fail, получен %v", body["status"])
	}
}

type staticChecker struct {
	status  string
	message string
}

func (c staticChecker) CheckReady() (string, string) { return c.status, c.message }

func TestHealthReady_Degraded(t *testing.T) {
	health := NewHealthHandler(
		staticChecker{status: "ok"},
		staticChecker{status: "degraded", message: "медленный ответ"},
		staticChecker{status: "ok"},
	)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	health.HealthReady(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200 для degraded, получен %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "degraded" {
		t.Errorf("ожидался статус degraded, получен %v", body["status"])
	}
}
