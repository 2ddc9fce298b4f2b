// Package http serves the ledger JSON API.
//
// This file implements a small builder for JSON responses so every handler
// writes status, headers and body the same way.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ledger/internal/core"
	"ledger/internal/log"
)

// Client-facing messages for errors that carry no message of their own.
const (
	msgNotFound    = "Not found"
	msgServerError = "Server error"
	msgBadJSON     = "Request body must be a JSON object."
	msgRateLimited = "Too many requests. Please try again later."
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data wraps v as {"data": v}.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.payload = map[string]any{"data": v}
	return b
}

// Body sets v as the whole response document.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Error sets {"error": message}.
func (b *JSONResponseBuilder) Error(message string) *JSONResponseBuilder {
	b.payload = map[string]string{"error": message}
	return b
}

// Write sends the built response. A nil payload writes headers only.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	body, err := json.Marshal(b.payload)
	if err != nil {
		slog.Error("Failed to encode response", log.FieldError, err)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"` + msgServerError + `"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// ErrorResponse creates a standard {"error": message} response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Error(message)
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, msgNotFound)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, msgServerError)
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// FromError builds the response for err. Only taxonomy errors expose their
// message; everything else is logged and answered with a generic 500.
func FromError(r *http.Request, operation string, err error) *JSONResponseBuilder {
	status := StatusFor(err)
	switch status {
	case http.StatusInternalServerError:
		ctx := r.Context()
		fields := log.NewFields().
			WithOwner(int64(core.OwnerFromContext(ctx))).
			WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), r.Referer())
		log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, "Request failed", err, operation, fields)
		return InternalServerError()
	case http.StatusNotFound:
		return ErrorResponse(status, core.PublicMessage(err, msgNotFound))
	default:
		return ErrorResponse(status, core.PublicMessage(err, err.Error()))
	}
}

// writeError answers r with the response mapped from err.
func writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	FromError(r, operation, err).Write(w)
}
