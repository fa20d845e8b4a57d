package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dronophaeton/blooddon/admin-module/internal/bloodclient"
	"github.com/dronophaeton/blooddon/admin-module/internal/domain/model"
	"github.com/dronophaeton/blooddon/admin-module/internal/session"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// acceptCall — зафиксированный вызов AcceptRequest.
type acceptCall struct {
	requestID   string
	ownerUserID string
	isAccepted  bool
}

// mockModerationBackend — мок Blood Service для модерации.
type mockModerationBackend struct {
	mu        sync.Mutex
	requests  []model.Request
	fetchErr  error
	acceptErr error
	calls     []acceptCall
	// block: если не nil, AcceptRequest ждёт закрытия канала.
	block chan struct{}
}

func (m *mockModerationBackend) GetAllRequests(_ context.Context) ([]model.Request, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.requests, nil
}

func (m *mockModerationBackend) AcceptRequest(_ context.Context, requestID, ownerUserID string, isAccepted bool) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	m.calls = append(m.calls, acceptCall{requestID, ownerUserID, isAccepted})
	m.mu.Unlock()
	return m.acceptErr
}

func (m *mockModerationBackend) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockAuditRepo — мок журнала аудита.
type mockAuditRepo struct {
	mu      sync.Mutex
	entries []*model.AuditEntry
	err     error
}

func (m *mockAuditRepo) Insert(_ context.Context, e *model.AuditEntry) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func (m *mockAuditRepo) GetByID(_ context.Context, _ string) (*model.AuditEntry, error) {
	return nil, errors.New("не реализовано")
}

func (m *mockAuditRepo) List(_ context.Context, _ string, _, _ int) ([]*model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries, nil
}

func (m *mockAuditRepo) Count(_ context.Context, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

// testRequests — стандартный набор заявок для тестов.
func testRequests() []model.Request {
	return []model.Request{
		{ID: "req-1", Status: model.StatusPending, OwnerUserID: "owner-1", RequestDate: "2026-01-10"},
		{ID: "req-2", Status: model.StatusPending, OwnerUserID: "owner-2", RequestDate: "2026-01-05"},
		{ID: "req-3", Status: model.StatusAccepted, OwnerUserID: "owner-3", RequestDate: "2026-01-01"},
		{ID: "req-4", Status: model.StatusRejected, OwnerUserID: "owner-4", RequestDate: "2026-01-02"},
	}
}

// testActor — администратор для тестов.
func testActor() *session.Identity {
	return &session.Identity{SubjectID: "admin-1", Username: "admin"}
}

// newLoadedService создаёт сервис с загруженными заявками.
func newLoadedService(t *testing.T, backend *mockModerationBackend, audit *mockAuditRepo) *ModerationService {
	t.Helper()
	var svc *ModerationService
	if audit != nil {
		svc = NewModerationService(backend, audit, testLogger())
	} else {
		svc = NewModerationService(backend, nil, testLogger())
	}
	if err := svc.LoadRequests(context.Background()); err != nil {
		t.Fatalf("LoadRequests() ошибка: %v", err)
	}
	return svc
}

// TestQueueFor — проекции по статусу, стабильный порядок по дате.
func TestQueueFor(t *testing.T) {
	backend := &mockModerationBackend{requests: testRequests()}
	svc := newLoadedService(t, backend, nil)

	pending := svc.QueueFor(model.StatusPending)
	if len(pending) != 2 {
		t.Fatalf("Pending: %d заявок, хотели 2", len(pending))
	}
	// req-2 раньше по дате, поэтому первая
	if pending[0].ID != "req-2" || pending[1].ID != "req-1" {
		t.Errorf("порядок Pending = [%s %s], хотели [req-2 req-1]", pending[0].ID, pending[1].ID)
	}

	if n := len(svc.QueueFor(model.StatusAccepted)); n != 1 {
		t.Errorf("Accepted: %d заявок, хотели 1", n)
	}
	if n := len(svc.QueueFor(model.StatusRejected)); n != 1 {
		t.Errorf("Rejected: %d заявок, хотели 1", n)
	}
}

// TestLoadRequests_Replaces — повторная загрузка замещает коллекцию.
func TestLoadRequests_Replaces(t *testing.T) {
	backend := &mockModerationBackend{requests: testRequests()}
	svc := newLoadedService(t, backend, nil)

	backend.requests = []model.Request{
		{ID: "req-9", Status: model.StatusPending, OwnerUserID: "owner-9"},
	}
	if err := svc.LoadRequests(context.Background()); err != nil {
		t.Fatalf("LoadRequests() ошибка: %v", err)
	}

	pending := svc.QueueFor(model.StatusPending)
	if len(pending) != 1 || pending[0].ID != "req-9" {
		t.Errorf("Pending = %+v, хотели только req-9", pending)
	}
}

// TestLoadRequests_FetchFailed — ошибка backend с его сообщением.
func TestLoadRequests_FetchFailed(t *testing.T) {
	backend := &mockModerationBackend{
		fetchErr: &bloodclient.BackendError{StatusCode: 500, Message: "база недоступна"},
	}
	svc := NewModerationService(backend, nil, testLogger())

	err := svc.LoadRequests(context.Background())
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("ожидался ErrFetchFailed, получено %v", err)
	}
	if !strings.Contains(err.Error(), "база недоступна") {
		t.Errorf("ошибка %q не содержит сообщение backend", err)
	}
}

// TestLoadRequests_DecodeFailed — мусор вместо JSON от backend.
func TestLoadRequests_DecodeFailed(t *testing.T) {
	backend := &mockModerationBackend{
		fetchErr: fmt.Errorf("%w: GetAllRequests: unexpected EOF", bloodclient.ErrDecode),
	}
	svc := NewModerationService(backend, nil, testLogger())

	err := svc.LoadRequests(context.Background())
	if !errors.Is(err, ErrDecodeFailed) {
		t.Errorf("ожидался ErrDecodeFailed, получено %v", err)
	}
}

// TestTransition_Accept — Pending → Accepted.
func TestTransition_Accept(t *testing.T) {
	backend := &mockModerationBackend{requests: testRequests()}
	audit := &mockAuditRepo{}
	svc := newLoadedService(t, backend, audit)

	if err := svc.Transition(context.Background(), "req-1", model.StatusAccepted, testActor()); err != nil {
		t.Fatalf("Transition() ошибка: %v", err)
	}

	// Backend получил правильный вызов
	if backend.callCount() != 1 {
		t.Fatalf("backend получил %d вызовов, хотели 1", backend.callCount())
	}
	call := backend.calls[0]
	if call.requestID != "req-1" || call.ownerUserID != "owner-1" || !call.isAccepted {
		t.Errorf("вызов backend = %+v, хотели {req-1 owner-1 true}", call)
	}

	// Заявка исчезла из всех очередей
	for _, status := range []model.RequestStatus{model.StatusPending, model.StatusAccepted, model.StatusRejected} {
		for _, r := range svc.QueueFor(status) {
			if r.ID == "req-1" {
				t.Errorf("req-1 осталась в очереди %s после перехода", status)
			}
		}
	}

	// Аудит записан
	if len(audit.entries) != 1 {
		t.Fatalf("аудит: %d записей, хотели 1", len(audit.entries))
	}
	e := audit.entries[0]
	if e.Action != model.AuditActionAcceptRequest || e.SubjectID != "req-1" ||
		e.OwnerUserID != "owner-1" || e.ActorID != "admin-1" {
		t.Errorf("запись аудита = %+v", e)
	}
}

// TestTransition_Reject — Pending → Rejected с isAccepted=false.
func TestTransition_Reject(t *testing.T) {
	backend := &mockModerationBackend{requests: testRequests()}
	audit := &mockAuditRepo{}
	svc := newLoadedService(t, backend, audit)

	if err := svc.Transition(context.Background(), "req-2", model.StatusRejected, testActor()); err != nil {
		t.Fatalf("Transition() ошибка: %v", err)
	}
	if backend.calls[0].isAccepted {
		t.Error("ожидался isAccepted=false при отклонении")
	}
	if audit.entries[0].Action != model.AuditActionRejectRequest {
		t.Errorf("Action = %q, хотели reject_request", audit.entries[0].Action)
	}
}

// TestTransition_ReAcceptRejected — отклонённую заявку можно принять повторно.
func TestTransition_ReAcceptRejected(t *testing.T) {
	backend := &mockModerationBackend{requests: testRequests()}
	svc := newLoadedService(t, backend, nil)

	if err := svc.Transition(context.Background(), "req-4", model.StatusAccepted, testActor()); err != nil {
		t.Fatalf("повторное принятие отклонённой заявки: %v", err)
	}
	if !backend.calls[0].isAccepted {
		t.Error("ожидался isAccepted=true")
	}
}

// TestTransition_Invalid — запрещённые переходы не доходят до backend.
func TestTransition_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		requestID string
		target    model.RequestStatus
	}{
		{"Accepted — терминальный", "req-3", model.StatusRejected},
		{"Rejected → Rejected повторно", "req-4", model.StatusRejected},
		{"целевой статус Pending", "req-1", model.StatusPending},
		{"неизвестный целевой статус", "req-1", model.RequestStatus("Cancelled")},
		{"неизвестная заявка", "req-404", model.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockModerationBackend{requests: testRequests()}
			svc := newLoadedService(t, backend, nil)

			err := svc.Transition(context.Background(), tt.requestID, tt.target, testActor())
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("ожидался ErrInvalidTransition, получено %v", err)
			}
			if backend.callCount() != 0 {
				t.Error("запрещённый переход дошёл до backend")
			}
		})
	}
}

// TestTransition_BackendFailure — при отказе backend локальное состояние не меняется.
func TestTransition_BackendFailure(t *testing.T) {
	backend := &mockModerationBackend{
		requests:  testRequests(),
		acceptErr: &bloodclient.BackendError{StatusCode: 409, Message: "заявка уже обработана"},
	}
	audit := &mockAuditRepo{}
	svc := newLoadedService(t, backend, audit)

	err := svc.Transition(context.Background(), "req-1", model.StatusAccepted, testActor())
	if !errors.Is(err, ErrTransitionFailed) {
		t.Fatalf("ожидался ErrTransitionFailed, получено %v", err)
	}
	if !strings.Contains(err.Error(), "заявка уже обработана") {
		t.Errorf("ошибка %q не содержит сообщение backend", err)
	}

	// Заявка осталась в Pending
	found := false
	for _, r := range svc.QueueFor(model.StatusPending) {
		if r.ID == "req-1" {
			found = true
		}
	}
	if !found {
		t.Error("req-1 исчезла из Pending после отказа backend")
	}

	// Аудит не писался
	if len(audit.entries) != 0 {
		t.Errorf("аудит: %d записей после отказа backend, хотели 0", len(audit.entries))
	}

	// Single-flight guard снят: повторная попытка снова доходит до backend
	backend.acceptErr = nil
	if err := svc.Transition(context.Background(), "req-1", model.StatusAccepted, testActor()); err != nil {
		t.Fatalf("повторный Transition() ошибка: %v", err)
	}
}

// TestTransition_SingleFlight — повторный вызов по заявке в полёте отклоняется.
func TestTransition_SingleFlight(t *testing.T) {
	backend := &mockModerationBackend{
		requests: testRequests(),
		block:    make(chan struct{}),
	}
	svc := newLoadedService(t, backend, nil)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- svc.Transition(context.Background(), "req-1", model.StatusAccepted, testActor())
	}()

	// Ждём, пока первый вызов захватит guard и повиснет на backend
	waitInFlight(t, svc, "req-1")

	// Повторный вызов по той же заявке — конфликт, до backend не доходит
	err := svc.Transition(context.Background(), "req-1", model.StatusRejected, testActor())
	if !errors.Is(err, ErrTransitionInFlight) {
		t.Fatalf("ожидался ErrTransitionInFlight, получено %v", err)
	}

	// Другая заявка в это же время проходит (guard per-id, не глобальный)
	done2 := make(chan error, 1)
	go func() {
		done2 <- svc.Transition(context.Background(), "req-2", model.StatusAccepted, testActor())
	}()
	waitInFlight(t, svc, "req-2")

	close(backend.block)
	if err := <-firstDone; err != nil {
		t.Errorf("первый Transition() ошибка: %v", err)
	}
	if err := <-done2; err != nil {
		t.Errorf("Transition(req-2) ошибка: %v", err)
	}
	if backend.callCount() != 2 {
		t.Errorf("backend получил %d вызовов, хотели 2", backend.callCount())
	}
}

// waitInFlight ждёт появления заявки в in-flight наборе.
func waitInFlight(t *testing.T, svc *ModerationService, requestID string) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		svc.mu.Lock()
		_, busy := svc.inFlight[requestID]
		svc.mu.Unlock()
		if busy {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("заявка %s так и не попала в in-flight", requestID)
}

// TestTransition_AuditFailureDoesNotFail — отказ журнала не ломает операцию.
func TestTransition_AuditFailureDoesNotFail(t *testing.T) {
	backend := &mockModerationBackend{requests: testRequests()}
	audit := &mockAuditRepo{err: errors.New("таблица недоступна")}
	svc := newLoadedService(t, backend, audit)

	if err := svc.Transition(context.Background(), "req-1", model.StatusAccepted, testActor()); err != nil {
		t.Errorf("Transition() ошибка при отказе аудита: %v", err)
	}
}
