package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fintrack/internal/events"
	"fintrack/internal/impexp"
	"fintrack/internal/kv"
	applog "fintrack/internal/log"
	"fintrack/internal/reconcile"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := kv.NewMemoryStore()
	registry := storage.NewRegistryStore(store)
	mirror := storage.NewLedgerStore(store)
	sessions := storage.NewSessionStore(store)
	engine := reconcile.NewEngine(registry, mirror, reconcile.Config{Interval: time.Hour})
	merger := impexp.NewMerger(registry, engine)
	tracker := services.NewTracker(registry, mirror, sessions, engine, merger, events.NewBus(nil), 6)

	logger := applog.New(applog.Config{Component: applog.ComponentHTTP})
	return NewServer(":0", tracker, logger)
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.10:55000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func registerUser(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/register", "", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "Abc123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("register returned empty token")
	}
	return resp.Token
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, s.Handler, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler, http.MethodGet, "/healthz", "", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options = %q", got)
	}
}

func TestSuspiciousPathRejected(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler, http.MethodGet, "/healthz/.git", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for probe path, got %d", rec.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s.Handler)

	// Session restore works with the token.
	rec := doJSON(t, s.Handler, http.MethodGet, "/session", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("session: status %d", rec.Code)
	}

	// Wrong token is rejected.
	rec = doJSON(t, s.Handler, http.MethodGet, "/session", "bogus", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}

	// Logout invalidates the session.
	rec = doJSON(t, s.Handler, http.MethodPost, "/logout", token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d", rec.Code)
	}
	rec = doJSON(t, s.Handler, http.MethodGet, "/session", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t)
	registerUser(t, s.Handler)

	rec := doJSON(t, s.Handler, http.MethodPost, "/login", "", map[string]string{
		"username": "alice",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestDuplicateRegisterConflicts(t *testing.T) {
	s := newTestServer(t)
	registerUser(t, s.Handler)

	rec := doJSON(t, s.Handler, http.MethodPost, "/register", "", map[string]string{
		"username": "alice",
		"email":    "other@example.com",
		"password": "Abc123",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s.Handler)

	rec := doJSON(t, s.Handler, http.MethodPost, "/transactions", token, map[string]string{
		"type":        "income",
		"amount":      "150,75",
		"category":    "Зарплата",
		"description": "salary",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	var tx struct {
		ID     string `json:"id"`
		Amount int64  `json:"amount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &tx); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	if tx.ID == "" || tx.Amount != 15075 {
		t.Fatalf("unexpected transaction %+v", tx)
	}

	rec = doJSON(t, s.Handler, http.MethodGet, "/transactions?period=all", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var list []json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one transaction, got %d", len(list))
	}

	rec = doJSON(t, s.Handler, http.MethodDelete, "/transactions?id="+tx.ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = doJSON(t, s.Handler, http.MethodGet, "/transactions", token, nil)
	var after []json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &after); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(after) != 0 {
		t.Fatalf("expected empty list after delete, got %d", len(after))
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s.Handler)

	rec := doJSON(t, s.Handler, http.MethodPost, "/transactions", token, map[string]string{
		"type":        "income",
		"amount":      "abc",
		"category":    "Зарплата",
		"description": "x",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s.Handler)

	for _, in := range []map[string]string{
		{"type": "income", "amount": "100", "category": "Зарплата", "description": "a"},
		{"type": "expense", "amount": "30", "category": "Продукты", "description": "b"},
	} {
		rec := doJSON(t, s.Handler, http.MethodPost, "/transactions", token, in)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create: status %d", rec.Code)
		}
	}

	rec := doJSON(t, s.Handler, http.MethodGet, "/stats?period=month", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: status %d", rec.Code)
	}
	var ov struct {
		Period string `json:"period"`
		Stats  struct {
			Income  int64 `json:"income"`
			Expense int64 `json:"expense"`
			Balance int64 `json:"balance"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ov); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if ov.Period != "month" || ov.Stats.Balance != 7000 {
		t.Fatalf("unexpected overview %+v", ov)
	}
}

func TestCategoriesEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler, http.MethodGet, "/categories", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("categories: status %d", rec.Code)
	}
	var resp categoriesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode categories: %v", err)
	}
	if len(resp.Income) == 0 || len(resp.Expense) == 0 {
		t.Fatalf("unexpected categories %+v", resp)
	}
}

func TestExportImportEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s.Handler)

	rec := doJSON(t, s.Handler, http.MethodPost, "/transactions", token, map[string]string{
		"type": "expense", "amount": "10", "category": "Продукты", "description": "x",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d", rec.Code)
	}
	rec = doJSON(t, s.Handler, http.MethodPost, "/sync", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync: status %d", rec.Code)
	}

	rec = doJSON(t, s.Handler, http.MethodGet, "/export", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: status %d body %s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); cd == "" {
		t.Fatal("export missing Content-Disposition")
	}

	// Re-importing the export merges nothing.
	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewReader(rec.Body.Bytes()))
	req.RemoteAddr = "203.0.113.10:55000"
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("import: status %d body %s", rr.Code, rr.Body.String())
	}
	var res impexp.MergeResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode import result: %v", err)
	}
	if res.Merged != 0 || res.Skipped != 1 {
		t.Fatalf("unexpected merge result %+v", res)
	}
}

func TestSyncStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s.Handler)

	rec := doJSON(t, s.Handler, http.MethodPost, "/sync?reason=focus", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync: status %d", rec.Code)
	}
	rec = doJSON(t, s.Handler, http.MethodGet, "/sync/status", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync status: status %d", rec.Code)
	}
	var st reconcile.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.LastAction == "" {
		t.Fatalf("expected a recorded action, got %+v", st)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler, http.MethodDelete, "/login", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "POST" {
		t.Fatalf("Allow = %q", allow)
	}
}
