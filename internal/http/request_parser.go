// Package http serves the ledger JSON API.
//
// This file implements request body parsing and query/path extraction
// shared by the handlers.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ledger/internal/core"
)

const (
	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes = 64 << 10
	// MaxListLimit caps the limit parameter of expense listings.
	MaxListLimit = 1000
)

var errBodyTooLarge = core.Invalid("Request body is too large.")

// RequestBodyParser reads a JSON object body, falling back to form
// encoding when the body does not start with '{'.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the request body once, up to MaxBodyBytes.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}

	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	var maxErr *http.MaxBytesError
	if errors.As(p.err, &maxErr) {
		p.err = errBodyTooLarge
	}
	return p
}

// Parse decodes the body. Any decoding failure is an invalid-input error.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' || trimmed[0] == '[' || strings.HasPrefix(p.contentType, "application/json") {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		data := make(map[string]any)
		if err := dec.Decode(&data); err != nil {
			p.err = core.Invalid(msgBadJSON)
			return p.err
		}
		p.jsonData = data
		return nil
	}

	form, err := url.ParseQuery(string(trimmed))
	if err != nil {
		p.err = core.Invalid("Request body could not be parsed.")
		return p.err
	}
	p.formData = form
	return nil
}

// Get returns the trimmed, sanitized value of key, or "".
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON reports whether the body was decoded as JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue renders a decoded JSON scalar as text. Numbers keep their
// literal form so amounts are never routed through float64.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ExpenseDraft collects the expense fields of a parsed body.
func (p *RequestBodyParser) ExpenseDraft() core.ExpenseDraft {
	return core.ExpenseDraft{
		Type:       p.Get("type"),
		Amount:     p.Get("amount"),
		CategoryID: p.Get("category_id"),
		Note:       p.Get("note"),
		OccurredAt: p.Get("occurred_at"),
	}
}

// ParseExpenseFilter reads from, to, type, category_id and limit. from and
// to take the occurred_at formats; a date-only to covers that whole day.
// Unparsable bounds or category are rejected, a bad limit is ignored.
func ParseExpenseFilter(query url.Values, loc *time.Location) (core.ExpenseFilter, error) {
	var f core.ExpenseFilter

	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		from, err := core.ParseOccurredAt(raw, loc)
		if err != nil {
			return f, core.Invalid("from must be an ISO date or datetime.")
		}
		f.From = &from
	}

	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		to, err := core.ParseOccurredAt(raw, loc)
		if err != nil {
			return f, core.Invalid("to must be an ISO date or datetime.")
		}
		if len(raw) == len(core.DayLayout) {
			to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
			if to.After(core.MaxOccurredAt) {
				to = core.MaxOccurredAt
			}
		}
		f.To = &to
	}

	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return f, core.Invalid("from must not be after to.")
	}

	if raw := strings.TrimSpace(query.Get("type")); raw != "" {
		t, err := core.ParseEntryType(raw)
		if err != nil {
			return f, core.Invalid("type must be income or expense.")
		}
		f.Type = &t
	}

	if raw := strings.TrimSpace(query.Get("category_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return f, core.Invalid("category_id must be a positive integer.")
		}
		f.CategoryID = &id
	}

	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			f.Limit = min(n, MaxListLimit)
		}
	}

	return f, nil
}

// pathID parses the {id} path segment. Anything that is not a positive
// integer reads as a missing resource.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.NotFound(msgNotFound)
	}
	return id, nil
}
