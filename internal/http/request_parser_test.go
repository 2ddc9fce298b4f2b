package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
)

func parserFor(body, contentType string) *RequestBodyParser {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return NewRequestBodyParser(httptest.NewRecorder(), r)
}

func TestRequestBodyParser_JSONKeepsNumberText(t *testing.T) {
	p := parserFor(`{"amount": 0.10, "category_id": 3, "note": " a\u0000b ", "flag": true, "nested": {"x": 1}}`, "application/json")
	require.NoError(t, p.Parse())
	assert.True(t, p.IsJSON())

	assert.Equal(t, "0.10", p.Get("amount"))
	assert.Equal(t, "3", p.Get("category_id"))
	assert.Equal(t, "ab", p.Get("note"))
	assert.Equal(t, "true", p.Get("flag"))
	assert.Equal(t, "", p.Get("nested"))
	assert.Equal(t, "", p.Get("missing"))
}

func TestRequestBodyParser_Form(t *testing.T) {
	p := parserFor("name=Coffee+beans&color=%23abc", "application/x-www-form-urlencoded")
	require.NoError(t, p.Parse())
	assert.False(t, p.IsJSON())
	assert.Equal(t, "Coffee beans", p.Get("name"))
	assert.Equal(t, "#abc", p.Get("color"))
}

func TestRequestBodyParser_Errors(t *testing.T) {
	p := parserFor(`not json`, "application/json")
	err := p.Parse()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
	assert.Equal(t, err, p.Parse(), "parse result is memoized")

	p = parserFor(`{"note":"`+strings.Repeat("x", MaxBodyBytes)+`"}`, "application/json")
	err = p.Parse()
	require.Error(t, err)
	assert.Equal(t, "Request body is too large.", core.PublicMessage(err, ""))

	p = parserFor("", "")
	require.NoError(t, p.Parse())
	assert.Equal(t, "", p.Get("name"))
}

func TestRequestBodyParser_ExpenseDraft(t *testing.T) {
	p := parserFor(`{"type":"income","amount":"12,5","category_id":2,"note":"taxi","occurred_at":"2024-02-29"}`, "")
	require.NoError(t, p.Parse())
	assert.Equal(t, core.ExpenseDraft{
		Type:       "income",
		Amount:     "12,5",
		CategoryID: "2",
		Note:       "taxi",
		OccurredAt: "2024-02-29",
	}, p.ExpenseDraft())
}

func TestParseExpenseFilter(t *testing.T) {
	rome := time.FixedZone("CET", 60*60)

	f, err := ParseExpenseFilter(url.Values{
		"from":        {"2024-03-01"},
		"to":          {"2024-03-31"},
		"category_id": {"4"},
		"type":        {"Income"},
		"limit":       {"20"},
	}, rome)
	require.NoError(t, err)
	require.NotNil(t, f.Type)
	assert.Equal(t, core.EntryIncome, *f.Type)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, rome), *f.From)
	assert.Equal(t, time.Date(2024, 3, 31, 23, 59, 59, 999999999, rome), *f.To)
	assert.Equal(t, int64(4), *f.CategoryID)
	assert.Equal(t, 20, f.Limit)

	f, err = ParseExpenseFilter(url.Values{"to": {"2024-03-31T10:00:00Z"}, "limit": {"many"}}, rome)
	require.NoError(t, err)
	assert.Nil(t, f.From)
	assert.True(t, f.To.Equal(time.Date(2024, 3, 31, 10, 0, 0, 0, time.UTC)), "datetime to is taken as is")
	assert.Equal(t, 0, f.Limit, "bad limit is ignored")

	f, err = ParseExpenseFilter(url.Values{"limit": {"999999"}}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, MaxListLimit, f.Limit)
	assert.Nil(t, f.Type)

	f, err = ParseExpenseFilter(url.Values{"to": {"9999-12-31"}}, time.FixedZone("UTC-2", -2*60*60))
	require.NoError(t, err)
	assert.True(t, f.To.Equal(core.MaxOccurredAt), "the end of the last day stays in range")

	for _, bad := range []url.Values{
		{"from": {"last week"}},
		{"to": {"31/03/2024"}},
		{"category_id": {"0"}},
		{"category_id": {"food"}},
		{"type": {"transfer"}},
		{"from": {"0000-01-01T00:00:00+01:00"}},
		{"from": {"2024-04-01"}, "to": {"2024-03-01"}},
	} {
		_, err := ParseExpenseFilter(bad, time.UTC)
		assert.ErrorIs(t, err, core.ErrInvalidInput, "%v", bad)
	}
}

func TestPathID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/expenses/42", nil)
	r.SetPathValue("id", "42")
	id, err := pathID(r)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"", "0", "-1", "4x"} {
		r.SetPathValue("id", raw)
		_, err := pathID(r)
		assert.ErrorIs(t, err, core.ErrNotFound, raw)
	}
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "line1\nline2", sanitizeInput("  line1\nline2\x07 "))
	assert.Equal(t, "tab\there", sanitizeInput("tab\there\x7f"))
}
