// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses.
// It provides a fluent API for the status, headers, HX-Trigger events and
// body of a response so every handler answers in the same shape.

package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"bilancio/internal/core"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       any
	headers    map[string]string
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named event with optional data to the HX-Trigger header.
// Dashboard panels listen for these to refresh themselves.
func (b *ResponseBuilder) Trigger(name string, data any) *ResponseBuilder {
	b.triggers[name] = data
	return b
}

func periodData(period *core.Date) map[string]string {
	if period == nil {
		return map[string]string{"period": ""}
	}
	return map[string]string{"period": period.String()}
}

// TriggerPreferencesChanged adds the preferences:changed trigger.
func (b *ResponseBuilder) TriggerPreferencesChanged() *ResponseBuilder {
	return b.Trigger("preferences:changed", struct{}{})
}

// TriggerLedgerAppended adds the ledger:appended trigger with the entry's period.
func (b *ResponseBuilder) TriggerLedgerAppended(period *core.Date) *ResponseBuilder {
	return b.Trigger("ledger:appended", periodData(period))
}

// TriggerPeriodChanged adds the period:changed trigger with the new default.
func (b *ResponseBuilder) TriggerPeriodChanged(period *core.Date) *ResponseBuilder {
	return b.Trigger("period:changed", periodData(period))
}

// TriggerRecurringChanged adds the recurring:changed trigger.
func (b *ResponseBuilder) TriggerRecurringChanged() *ResponseBuilder {
	return b.Trigger("recurring:changed", struct{}{})
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	var payload []byte
	if b.body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(b.body); err != nil {
			slog.Error("Failed to encode response body", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		payload = buf.Bytes()
		w.Header().Set("Content-Type", "application/json")
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if len(b.triggers) > 0 {
		triggerJSON, err := json.Marshal(b.triggers)
		if err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}

	w.WriteHeader(b.statusCode)
	if len(payload) > 0 {
		_, _ = w.Write(payload)
	}
}

// ErrorBody is the JSON shape of every error response. Reason is set for
// rejected preference mutations only.
type ErrorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// ErrorResponse creates a standard JSON error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().
		Status(statusCode).
		JSON(ErrorBody{Error: message})
}

// ValidationErrorResponse creates a 422 carrying the rejection reason.
func ValidationErrorResponse(reason core.ValidationReason, message string) *ResponseBuilder {
	return NewResponse().
		Status(http.StatusUnprocessableEntity).
		JSON(ErrorBody{Error: message, Reason: string(reason)})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// ServiceUnavailableError creates a 503 Service Unavailable error response.
func ServiceUnavailableError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusServiceUnavailable, message)
}
