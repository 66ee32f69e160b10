package sms

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"hound-taskchat/internal/chat"
	"hound-taskchat/shared/idempotency"
)

// mockChatter records requests for test assertions
type mockChatter struct {
	requests []chat.Request
	reply    string
	err      error
}

func (m *mockChatter) Handle(ctx context.Context, req chat.Request) (*chat.Response, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &chat.Response{Reply: m.reply, RequestID: req.RequestID}, nil
}

func makeFormRequest(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/sms", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func smsForm(body string) url.Values {
	form := url.Values{}
	form.Set("From", "+970599000000")
	form.Set("Body", body)
	form.Set("MessageSid", "SM123456789")
	return form
}

// sign computes the X-Twilio-Signature for a form POST.
func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// =============================================================================
// Message Tests
// =============================================================================

func TestWebhook_RepliesWithTwiML(t *testing.T) {
	mock := &mockChatter{reply: "تمام، ضفت المهمة: اشتري خبز"}
	handler := NewWebhookHandler(mock, nil, "")
	handler.SetDefaults("pal", "Asia/Hebron")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, makeFormRequest(smsForm("  ضيف مهمة اشتري خبز  ")))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("expected text/xml, got %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "<Message>") || !strings.Contains(rec.Body.String(), "اشتري خبز") {
		t.Errorf("expected TwiML message, got %s", rec.Body.String())
	}

	if len(mock.requests) != 1 {
		t.Fatalf("expected 1 chat turn, got %d", len(mock.requests))
	}
	req := mock.requests[0]
	if req.UserID != "+970599000000" {
		t.Errorf("expected sender as user id, got %s", req.UserID)
	}
	if req.Message != "ضيف مهمة اشتري خبز" {
		t.Errorf("expected trimmed body, got %q", req.Message)
	}
	if req.ConversationID != ConversationID {
		t.Errorf("expected conversation %s, got %s", ConversationID, req.ConversationID)
	}
	if req.Dialect != "pal" || req.Timezone != "Asia/Hebron" {
		t.Errorf("expected defaults, got %s %s", req.Dialect, req.Timezone)
	}
	if req.IdempotencyKey != idempotency.GenerateKey("sms", "SM123456789") {
		t.Errorf("unexpected idempotency key %s", req.IdempotencyKey)
	}
}

func TestWebhook_EmptyBodyGetsEmptyResponse(t *testing.T) {
	mock := &mockChatter{}
	handler := NewWebhookHandler(mock, nil, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, makeFormRequest(smsForm("   ")))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if strings.Contains(rec.Body.String(), "<Message>") {
		t.Errorf("expected no message, got %s", rec.Body.String())
	}
	if len(mock.requests) != 0 {
		t.Errorf("expected no chat turn, got %d", len(mock.requests))
	}
}

func TestWebhook_MissingFields(t *testing.T) {
	for _, field := range []string{"From", "MessageSid"} {
		t.Run(field, func(t *testing.T) {
			form := smsForm("hi")
			form.Del(field)

			rec := httptest.NewRecorder()
			NewWebhookHandler(&mockChatter{}, nil, "").ServeHTTP(rec, makeFormRequest(form))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
		})
	}
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	NewWebhookHandler(&mockChatter{}, nil, "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/sms", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestWebhook_ChatError(t *testing.T) {
	mock := &mockChatter{err: errors.New("boom")}

	rec := httptest.NewRecorder()
	NewWebhookHandler(mock, nil, "").ServeHTTP(rec, makeFormRequest(smsForm("hi")))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}

// =============================================================================
// Signature Validation Tests
// =============================================================================

func TestWebhook_MissingSignature(t *testing.T) {
	mock := &mockChatter{}

	rec := httptest.NewRecorder()
	NewWebhookHandler(mock, nil, "token").ServeHTTP(rec, makeFormRequest(smsForm("hi")))

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
	if len(mock.requests) != 0 {
		t.Errorf("expected no chat turn, got %d", len(mock.requests))
	}
}

func TestWebhook_InvalidSignature(t *testing.T) {
	req := makeFormRequest(smsForm("hi"))
	req.Header.Set("X-Twilio-Signature", "invalid-signature")

	rec := httptest.NewRecorder()
	NewWebhookHandler(&mockChatter{}, nil, "token").ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestWebhook_ValidSignature(t *testing.T) {
	const hookURL = "https://chat.example.com/webhooks/sms"
	form := smsForm("شو عندي")
	mock := &mockChatter{reply: "ما عندك مهام هلأ."}
	handler := NewWebhookHandler(mock, nil, "token")
	handler.SetWebhookURL(hookURL)

	req := makeFormRequest(form)
	req.Header.Set("X-Twilio-Signature", sign("token", hookURL, form))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if len(mock.requests) != 1 {
		t.Errorf("expected 1 chat turn, got %d", len(mock.requests))
	}
}
