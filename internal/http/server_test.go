package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/report"
	"ledger/internal/services"
	"ledger/internal/storage/memory"
)

func quietLogger() *log.Logger {
	return log.New(log.Config{Output: io.Discard, Format: "text"})
}

func newTestServer(t *testing.T, cfg Config) (*Server, *services.LedgerService) {
	t.Helper()
	store := memory.New(memory.DefaultSeeds)
	svc := services.NewLedgerService(store, report.NewEngine(store, time.UTC), time.UTC)
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	srv := NewServer(cfg, svc)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, svc
}

func do(t *testing.T, srv *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if strings.HasPrefix(body, "{") {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

// decode reads a JSON document keeping numbers as json.Number.
func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(rr.Body.Bytes()))
	dec.UseNumber()
	out := map[string]any{}
	require.NoError(t, dec.Decode(&out), "body: %s", rr.Body.String())
	return out
}

func createdID(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	id, ok := decode(t, rr)["id"].(json.Number)
	require.True(t, ok)
	return id.String()
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	for _, path := range []string{"/health", "/api/health"} {
		rr := do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	}

	rr := do(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestUnmatchedRequestsAreNotFound(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	cases := []struct{ method, path string }{
		{http.MethodGet, "/nope"},
		{http.MethodGet, "/api"},
		{http.MethodPost, "/summary/daily"},
		{http.MethodGet, "/categories/1"},
		{http.MethodPatch, "/expenses/1"},
	}
	for _, c := range cases {
		rr := do(t, srv, c.method, c.path, "")
		assert.Equal(t, http.StatusNotFound, rr.Code, "%s %s", c.method, c.path)
		assert.JSONEq(t, `{"error":"Not found"}`, rr.Body.String())
	}
}

func TestCategoryLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	id := createdID(t, do(t, srv, http.MethodPost, "/api/categories", `{"name":"  Coffee ","color":"#abc"}`))

	rr := do(t, srv, http.MethodPost, "/categories", `{"name":"Coffee"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "Category already exists.", decode(t, rr)["error"])

	rr = do(t, srv, http.MethodPost, "/categories", `{"name":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Category name is required.", decode(t, rr)["error"])

	rr = do(t, srv, http.MethodPost, "/categories", `{"name":"Tea","color":"blue"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, srv, http.MethodGet, "/categories", "")
	require.Equal(t, http.StatusOK, rr.Code)
	data := decode(t, rr)["data"].([]any)
	assert.Len(t, data, len(memory.DefaultSeeds)+1)
	assert.Contains(t, rr.Body.String(), `"name":"Coffee"`)

	rr = do(t, srv, http.MethodDelete, "/categories/"+id, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())

	rr = do(t, srv, http.MethodDelete, "/categories/"+id, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, srv, http.MethodDelete, "/categories/abc", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestExpenseLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	id := createdID(t, do(t, srv, http.MethodPost, "/expenses",
		`{"amount": 12.50, "category_id": 1, "note": "lunch", "occurred_at": "2024-03-05T12:00:00"}`))

	rr := do(t, srv, http.MethodGet, "/expenses/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	e := decode(t, rr)["data"].(map[string]any)
	assert.Equal(t, json.Number("12.5"), e["amount"])
	assert.Equal(t, "expense", e["type"])
	assert.Equal(t, "Food & Drink", e["category_name"])
	assert.Equal(t, "#4f46e5", e["category_color"])
	assert.Equal(t, "lunch", e["note"])
	assert.Equal(t, "2024-03-05T12:00:00Z", e["occurred_at"])

	rr = do(t, srv, http.MethodPut, "/expenses/"+id, `{"amount":"0","category_id":"1","occurred_at":"2024-03-05"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, srv, http.MethodPut, "/expenses/"+id, `{"amount":"7,25","category_id":"2","occurred_at":"2024-03-06"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"id":`+id+`}`, rr.Body.String())

	rr = do(t, srv, http.MethodPut, "/expenses/999", `{"amount":"1","category_id":"2","occurred_at":"2024-03-06"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodGet, "/expenses?from=2024-03-06&to=2024-03-06", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rows := decode(t, rr)["data"].([]any)
	require.Len(t, rows, 1, "a date-only to covers the whole day")
	assert.Equal(t, json.Number("7.25"), rows[0].(map[string]any)["amount"])
	assert.Equal(t, "Transport", rows[0].(map[string]any)["category_name"])

	rr = do(t, srv, http.MethodGet, "/expenses?category_id=1", "")
	assert.Empty(t, decode(t, rr)["data"])

	rr = do(t, srv, http.MethodGet, "/expenses?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, srv, http.MethodDelete, "/expenses/"+id, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, srv, http.MethodGet, "/expenses/"+id, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"Not found"}`, rr.Body.String())
}

func TestCreateExpenseValidation(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"negative amount", `{"amount":-1,"category_id":1,"occurred_at":"2024-01-01"}`, "Amount must be greater than zero."},
		{"text amount", `{"amount":"abc","category_id":1,"occurred_at":"2024-01-01"}`, "Amount must be greater than zero."},
		{"missing category", `{"amount":5,"occurred_at":"2024-01-01"}`, "Category is required."},
		{"unknown category", `{"amount":5,"category_id":999,"occurred_at":"2024-01-01"}`, "Category does not exist."},
		{"bad date", `{"amount":5,"category_id":1,"occurred_at":"01/02/2024"}`, "occurred_at is required (ISO date or datetime)."},
		{"exponent amount", `{"amount":"1e-300000","category_id":1,"occurred_at":"2024-01-01"}`, "Amount must be greater than zero."},
		{"too many decimals", `{"amount":"1.00001","category_id":1,"occurred_at":"2024-01-01"}`, "Amount must have at most 4 decimal places."},
		{"year before 0001 UTC", `{"amount":5,"category_id":1,"occurred_at":"0000-01-01T00:00:00+01:00"}`, "occurred_at is out of range (years 0001-9999 UTC)."},
		{"year after 9999 UTC", `{"amount":5,"category_id":1,"occurred_at":"9999-12-31T23:00:00-02:00"}`, "occurred_at is out of range (years 0001-9999 UTC)."},
		{"unknown type", `{"type":"transfer","amount":5,"category_id":1,"occurred_at":"2024-01-01"}`, "Type must be income or expense."},
		{"not an object", `[1,2]`, msgBadJSON},
		{"broken json", `{"amount":`, msgBadJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/expenses", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.want, decode(t, rr)["error"])
		})
	}

	rr := do(t, srv, http.MethodGet, "/expenses", "")
	assert.Empty(t, decode(t, rr)["data"], "rejected requests store nothing")

	form := httptest.NewRequest(http.MethodPost, "/expenses", strings.NewReader("amount=5&category_id=1&occurred_at=2024-01-01"))
	form.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, form)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestSummaries(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	for _, body := range []string{
		`{"amount":0.1,"category_id":1,"occurred_at":"2024-03-01T08:00:00Z"}`,
		`{"amount":0.2,"category_id":2,"occurred_at":"2024-03-01T20:00:00Z"}`,
	} {
		createdID(t, do(t, srv, http.MethodPost, "/expenses", body))
	}

	rr := do(t, srv, http.MethodGet, "/api/summary/monthly?month=2024-03", "")
	require.Equal(t, http.StatusOK, rr.Code)
	m := decode(t, rr)["data"].(map[string]any)
	assert.Equal(t, "2024-03", m["month"])
	assert.Equal(t, json.Number("0.3"), m["total"], "exact decimal sum")
	assert.Equal(t, json.Number("0.01"), m["average_per_day"])
	assert.Equal(t, json.Number("1"), m["days_with_data"])
	assert.Len(t, m["daily"], 1)
	assert.Len(t, m["categories"], 2)

	rr = do(t, srv, http.MethodGet, "/summary/monthly?month=2023-02", "")
	m = decode(t, rr)["data"].(map[string]any)
	assert.Equal(t, json.Number("0"), m["total"])
	assert.Equal(t, []any{}, m["daily"])
	assert.Equal(t, []any{}, m["categories"])

	now := time.Now().UTC().Truncate(time.Second)
	createdID(t, do(t, srv, http.MethodPost, "/expenses",
		fmt.Sprintf(`{"amount":"4","category_id":3,"occurred_at":%q}`, now.Format(time.RFC3339))))

	rr = do(t, srv, http.MethodGet, "/summary/daily?days=abc", "")
	require.Equal(t, http.StatusOK, rr.Code)
	days := decode(t, rr)["data"].([]any)
	require.Len(t, days, 1)
	assert.Equal(t, now.Format(core.DayLayout), days[0].(map[string]any)["day"])
	assert.Equal(t, json.Number("4"), days[0].(map[string]any)["total"])

	rr = do(t, srv, http.MethodGet, "/summary/categories", "")
	require.Equal(t, http.StatusOK, rr.Code)
	cats := decode(t, rr)["data"].([]any)
	require.Len(t, cats, 1)
	assert.Equal(t, "Groceries", cats[0].(map[string]any)["name"])
}

func TestIncomeEntries(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	salary := createdID(t, do(t, srv, http.MethodPost, "/expenses",
		`{"type":"income","amount":"2500","category_id":6,"occurred_at":"2024-03-27"}`))
	createdID(t, do(t, srv, http.MethodPost, "/expenses",
		`{"amount":"600.40","category_id":1,"occurred_at":"2024-03-02"}`))

	rr := do(t, srv, http.MethodGet, "/expenses/"+salary, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "income", decode(t, rr)["data"].(map[string]any)["type"])

	rr = do(t, srv, http.MethodGet, "/expenses?type=income", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rows := decode(t, rr)["data"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, json.Number("2500"), rows[0].(map[string]any)["amount"])

	rr = do(t, srv, http.MethodGet, "/expenses?type=gift", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "type must be income or expense.", decode(t, rr)["error"])

	rr = do(t, srv, http.MethodGet, "/summary/monthly?month=2024-03", "")
	require.Equal(t, http.StatusOK, rr.Code)
	m := decode(t, rr)["data"].(map[string]any)
	assert.Equal(t, json.Number("600.4"), m["total"])
	assert.Equal(t, json.Number("2500"), m["income"])
	assert.Equal(t, json.Number("1899.6"), m["balance"])
	assert.Len(t, m["categories"], 1)
	assert.Len(t, m["daily_income"], 1)
}

func TestMultiUserOwnerHeader(t *testing.T) {
	srv, _ := newTestServer(t, Config{MultiUser: true})

	rr := do(t, srv, http.MethodGet, "/categories", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	for _, bad := range []string{"abc", "0", "-3"} {
		rr = do(t, srv, http.MethodGet, "/categories", "", OwnerHeader, bad)
		assert.Equal(t, http.StatusBadRequest, rr.Code, bad)
	}

	rr = do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code, "probes need no owner")

	rr = do(t, srv, http.MethodGet, "/categories", "", OwnerHeader, "7")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode(t, rr)["data"])

	createdID(t, do(t, srv, http.MethodPost, "/categories", `{"name":"Rent"}`, OwnerHeader, "7"))
	createdID(t, do(t, srv, http.MethodPost, "/categories", `{"name":"Rent"}`, OwnerHeader, "8"))

	rr = do(t, srv, http.MethodGet, "/categories", "", OwnerHeader, "8")
	assert.Len(t, decode(t, rr)["data"], 1)
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Config{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/health", "").Code)
	}
	rr := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, msgRateLimited, decode(t, rr)["error"])
}

func TestTrustedProxiesAndShutdownStats(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	// httptest requests come from 192.0.2.1.
	srv, _ := newTestServer(t, Config{RateLimitPerMinute: 1, TrustedProxies: []string{"192.0.2.0/24", "not-a-cidr"}})
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/health", "", "X-Forwarded-For", "198.51.100.1").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/health", "", "X-Forwarded-For", "198.51.100.2").Code,
		"forwarded clients are limited separately")
	assert.Equal(t, http.StatusTooManyRequests, do(t, srv, http.MethodGet, "/health", "", "X-Forwarded-For", "198.51.100.1").Code)

	untrusted, _ := newTestServer(t, Config{RateLimitPerMinute: 1})
	assert.Equal(t, http.StatusOK, do(t, untrusted, http.MethodGet, "/health", "", "X-Forwarded-For", "198.51.100.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, untrusted, http.MethodGet, "/health", "", "X-Forwarded-For", "198.51.100.2").Code)

	require.NoError(t, srv.Shutdown(context.Background()))
	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, "HTTP server shutting down") {
			require.NoError(t, json.Unmarshal([]byte(line), &entry))
		}
	}
	require.NotNil(t, entry, buf.String())
	assert.Equal(t, float64(2), entry["active_clients"])
	assert.Equal(t, float64(3), entry["requests_served"])
}

func TestResponseHeaders(t *testing.T) {
	srv, _ := newTestServer(t, Config{CORSOrigin: "https://app.example"})

	rr := do(t, srv, http.MethodGet, "/categories", "", "Origin", "https://app.example", "X-Request-ID", "abc-123")
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "https://app.example", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

	rr = do(t, srv, http.MethodOptions, "/expenses", "", "Origin", "https://app.example", "Access-Control-Request-Method", "POST")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

// failingAPI answers like a ledger whose store is down.
type failingAPI struct {
	*services.LedgerService
}

func (failingAPI) ListCategories(context.Context) ([]core.Category, error) {
	return nil, fmt.Errorf("list categories: %w: %w", core.ErrStoreUnavailable, errors.New("disk I/O error at /var/lib/secret.db"))
}

func (failingAPI) Ping(context.Context) error {
	return errors.New("database is locked")
}

func TestStoreFailuresAreOpaque(t *testing.T) {
	store := memory.New(nil)
	svc := services.NewLedgerService(store, report.NewEngine(store, time.UTC), time.UTC)
	srv := NewServer(Config{Logger: quietLogger()}, failingAPI{svc})

	rr := do(t, srv, http.MethodGet, "/categories", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Server error"}`, rr.Body.String())
	assert.NotContains(t, rr.Body.String(), "secret")

	rr = do(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	h := recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Server error"}`, rr.Body.String())
}
