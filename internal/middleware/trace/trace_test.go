package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/log"
)

func TestMiddleware_AssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Format: "json", Output: &buf})
	m := NewMiddleware(logger, func(*http.Request) string { return "10.0.0.1" })

	var seen string
	h := log.Middleware(logger)(m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusCreated)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/expenses", nil))

	require.NotEmpty(t, seen)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
	assert.Equal(t, int64(1), m.TotalRequests())
	assert.Contains(t, buf.String(), `"request_id":"`+seen+`"`)
	assert.Contains(t, buf.String(), `"status_code":201`)
}

func TestMiddleware_KeepsValidIncomingID(t *testing.T) {
	m := NewMiddleware(log.New(log.Config{Output: &bytes.Buffer{}}), nil)

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderRequestID, "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "abc-123", seen)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderRequestID, strings.Repeat("x", 100)+"<script>")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.NotContains(t, seen, "<script>")
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	_, _ = rw.Write([]byte("ok"))
	rw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusOK, rw.statusCode)
}
