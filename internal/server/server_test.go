package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/user/emrchat/internal/config"
	"github.com/user/emrchat/internal/llm"
	"github.com/user/emrchat/internal/orchestrator"
	"github.com/user/emrchat/internal/prompts"
	testHelpers "github.com/user/emrchat/internal/testing"
)

type fakeChat struct {
	history []llm.Message
	message string
	err     error
	panics  bool
}

func (f *fakeChat) Chat(ctx context.Context, history []llm.Message, userMessage string) (*orchestrator.Result, error) {
	if f.panics {
		panic("kaboom")
	}
	f.history = history
	f.message = userMessage
	if f.err != nil {
		return nil, f.err
	}
	out := append([]llm.Message{}, history...)
	out = append(out,
		llm.Message{Role: "user", Content: userMessage},
		llm.Message{Role: "assistant", Content: "answer to " + userMessage},
	)
	return &orchestrator.Result{Response: "answer to " + userMessage, History: out}, nil
}

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:           "127.0.0.1",
		Port:           3001,
		CORSOrigin:     "http://localhost:3000",
		RequestTimeout: 5 * time.Second,
	}
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Detail
}

func TestHealth(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(testConfig(), &fakeChat{}, nil, WithClock(func() time.Time { return fixed }))

	rec := do(t, s.Handler(), http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "ok" {
		t.Errorf("status = %q", got.Status)
	}
	if got.Timestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("timestamp = %q", got.Timestamp)
	}
	if got.Services.Backend != "running" || got.Services.Port != 3001 {
		t.Errorf("services = %+v", got.Services)
	}
}

func TestChat_Success(t *testing.T) {
	chat := &fakeChat{}
	s := New(testConfig(), chat, nil)

	body := `{"message":"Show vitals for patient 10868","conversationHistory":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}`
	rec := do(t, s.Handler(), http.MethodPost, "/api/chat", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var got ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Response != "answer to Show vitals for patient 10868" {
		t.Errorf("response = %q", got.Response)
	}
	if len(got.ConversationHistory) != 4 {
		t.Fatalf("history length = %d, want 4", len(got.ConversationHistory))
	}
	if got.ConversationHistory[2].Role != "user" || got.ConversationHistory[3].Role != "assistant" {
		t.Errorf("history tail = %+v", got.ConversationHistory[2:])
	}
	if chat.message != "Show vitals for patient 10868" || len(chat.history) != 2 {
		t.Errorf("service saw message %q with %d history entries", chat.message, len(chat.history))
	}
}

func TestChat_MissingHistoryIsEmpty(t *testing.T) {
	chat := &fakeChat{}
	s := New(testConfig(), chat, nil)

	rec := do(t, s.Handler(), http.MethodPost, "/api/chat", `{"message":"hello"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(chat.history) != 0 {
		t.Errorf("history = %+v, want empty", chat.history)
	}
}

func TestChat_BadRequests(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantDetail string
	}{
		{"malformed json", `{"message":`, "invalid request body"},
		{"empty message", `{"message":"   "}`, "message must not be empty"},
		{"missing message", `{"conversationHistory":[]}`, "message must not be empty"},
		{"tool role in history", `{"message":"hi","conversationHistory":[{"role":"tool","content":"x"}]}`, `conversationHistory[0].role must be "user" or "assistant"`},
		{"system role in history", `{"message":"hi","conversationHistory":[{"role":"user","content":"a"},{"role":"system","content":"x"}]}`, `conversationHistory[1].role must be "user" or "assistant"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChat{}
			s := New(testConfig(), chat, nil)

			rec := do(t, s.Handler(), http.MethodPost, "/api/chat", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := decodeDetail(t, rec); got != tt.wantDetail {
				t.Errorf("detail = %q, want %q", got, tt.wantDetail)
			}
			if chat.message != "" {
				t.Error("chat service should not be called")
			}
		})
	}
}

func TestChat_ServiceFailure(t *testing.T) {
	s := New(testConfig(), &fakeChat{err: stderrors.New("llm exploded with secret details")}, nil)

	rec := do(t, s.Handler(), http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeDetail(t, rec); got != "Failed to process chat request" {
		t.Errorf("detail = %q", got)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Error("internal error leaked into response body")
	}
}

func TestRecovery(t *testing.T) {
	s := New(testConfig(), &fakeChat{panics: true}, nil)

	rec := do(t, s.Handler(), http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeDetail(t, rec); got != "internal server error" {
		t.Errorf("detail = %q", got)
	}
}

func TestNotFound(t *testing.T) {
	s := New(testConfig(), &fakeChat{}, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := decodeDetail(t, rec); got != "Not Found" {
		t.Errorf("detail = %q", got)
	}
}

func TestRequestID(t *testing.T) {
	s := New(testConfig(), &fakeChat{}, nil)

	t.Run("generated", func(t *testing.T) {
		rec := do(t, s.Handler(), http.MethodGet, "/health", "", nil)
		if rec.Header().Get(RequestIDHeader) == "" {
			t.Error("expected a generated request id")
		}
	})

	t.Run("preserved", func(t *testing.T) {
		rec := do(t, s.Handler(), http.MethodGet, "/health", "", map[string]string{RequestIDHeader: "abc-123"})
		if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
			t.Errorf("request id = %q, want abc-123", got)
		}
	})
}

func TestCORS(t *testing.T) {
	s := New(testConfig(), &fakeChat{}, nil)

	t.Run("allowed origin preflight", func(t *testing.T) {
		rec := do(t, s.Handler(), http.MethodOptions, "/api/chat", "", map[string]string{
			echo.HeaderOrigin:                     "http://localhost:3000",
			echo.HeaderAccessControlRequestMethod: http.MethodPost,
		})
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
		if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "http://localhost:3000" {
			t.Errorf("allow origin = %q", got)
		}
		if got := rec.Header().Get(echo.HeaderAccessControlAllowCredentials); got != "true" {
			t.Errorf("allow credentials = %q", got)
		}
	})

	t.Run("other origin", func(t *testing.T) {
		rec := do(t, s.Handler(), http.MethodGet, "/health", "", map[string]string{
			echo.HeaderOrigin: "http://evil.example",
		})
		if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "" {
			t.Errorf("allow origin = %q, want empty", got)
		}
	})
}

func TestRequestTimeout(t *testing.T) {
	mw := RequestTimeout(50 * time.Millisecond)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	var deadline time.Time
	var ok bool
	err := mw(func(c echo.Context) error {
		deadline, ok = c.Request().Context().Deadline()
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || time.Until(deadline) > 50*time.Millisecond {
		t.Errorf("deadline = %v (set %v)", deadline, ok)
	}
}

func TestChat_WithOrchestrator(t *testing.T) {
	pm, err := prompts.NewManager()
	if err != nil {
		t.Fatalf("prompts: %v", err)
	}
	client := testHelpers.NewMockLLMClient(testHelpers.TextResponse("Hello! How can I help?"))
	orch, err := orchestrator.New(client, nil, pm, orchestrator.Settings{MaxConcurrency: 2}, nil)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	s := New(testConfig(), orch, nil)

	rec := do(t, s.Handler(), http.MethodPost, "/api/chat", `{"message":"hello"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Response != "Hello! How can I help?" || len(got.ConversationHistory) != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestServe_GracefulShutdown(t *testing.T) {
	s := New(testConfig(), &fakeChat{}, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
