package webhooks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rentloop-backend/internal/webhooks/payfast"
	pkgerrors "github.com/angelmondragon/rentloop-backend/pkg/errors"
)

type fakePayFastService struct {
	mu        sync.Mutex
	calls     int
	authErr   error
	handleErr error
}

func (f *fakePayFastService) Authenticate(*payfast.Notification) error {
	return f.authErr
}

func (f *fakePayFastService) Handle(context.Context, *payfast.Notification) (payfast.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.handleErr != nil {
		return "", f.handleErr
	}
	return payfast.OutcomeApplied, nil
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: map[string]string{}}
}

func (s *inMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = "1"
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func notificationBody() string {
	return "m_payment_id=m1&pf_payment_id=1089250&payment_status=COMPLETE&amount_gross=108.00&custom_str1=" + uuid.NewString()
}

func newGuard(t *testing.T) *payfast.IdempotencyGuard {
	t.Helper()
	guard, err := payfast.NewIdempotencyGuard(newInMemoryStore(), time.Minute, "payfast-itn")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	return guard
}

func post(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payfast", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPayFastWebhook_SuccessAndIdempotent(t *testing.T) {
	service := &fakePayFastService{}
	handler := PayFastWebhook(service, newGuard(t), nil)
	body := notificationBody()

	rec := post(handler, body)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"success":true}` {
		t.Fatalf("expected ack, got %d (%s)", rec.Code, rec.Body.String())
	}

	// Replay the same delivery
	rec = post(handler, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", rec.Code)
	}
	if service.calls != 1 {
		t.Fatalf("expected duplicate not processed, call count %d", service.calls)
	}
}

func TestPayFastWebhook_InvalidSignature(t *testing.T) {
	service := &fakePayFastService{authErr: pkgerrors.New(pkgerrors.CodeValidation, "invalid signature")}
	rec := post(PayFastWebhook(service, newGuard(t), nil), notificationBody())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestPayFastWebhook_FailureReleasesGuard(t *testing.T) {
	service := &fakePayFastService{handleErr: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "upsert payment record")}
	handler := PayFastWebhook(service, newGuard(t), nil)
	body := notificationBody()

	if rec := post(handler, body); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	service.handleErr = nil
	if rec := post(handler, body); rec.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d", rec.Code)
	}
	if service.calls != 2 {
		t.Fatalf("expected retry to be processed, calls=%d", service.calls)
	}
}

func TestPayFastWebhook_NotFound(t *testing.T) {
	service := &fakePayFastService{handleErr: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	if rec := post(PayFastWebhook(service, newGuard(t), nil), notificationBody()); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPayFastWebhook_EmptyBody(t *testing.T) {
	if rec := post(PayFastWebhook(&fakePayFastService{}, nil, nil), ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPayFastWebhook_OversizedBodyRejected(t *testing.T) {
	service := &fakePayFastService{}
	body := notificationBody() + "&item_description=" + strings.Repeat("a", maxNotificationBytes)
	if rec := post(PayFastWebhook(service, newGuard(t), nil), body); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("oversized notification must not be handled, calls=%d", service.calls)
	}
}
