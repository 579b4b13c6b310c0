// Package api writes RFC 7807 problem details. Guard denials carry their
// reason code so agents can branch on it without parsing text.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Mindburn-Labs/assetguard/pkg/reason"
)

// ProblemDetail is an RFC 7807 problem document.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// Code is the guard reason code for denials.
	Code string `json:"code,omitempty"`
	// TraceID is the X-Request-ID of the failing request.
	TraceID string `json:"trace_id,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func write(w http.ResponseWriter, p *ProblemDetail) {
	if p.TraceID == "" {
		p.TraceID = w.Header().Get("X-Request-ID")
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteError writes a problem with the given status.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	write(w, &ProblemDetail{
		Type:   fmt.Sprintf("https://assetguard.dev/errors/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// WriteForbidden writes a 403 error response.
func WriteForbidden(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Insufficient permissions"
	}
	WriteError(w, http.StatusForbidden, "Forbidden", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

// WriteTooManyRequests writes a 429 error response with Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response. err is logged, never returned.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}

// StatusOf maps a reason code to an HTTP status.
func StatusOf(code reason.Code) int {
	switch code {
	case reason.MalformedPayload, reason.UnsupportedVersion:
		return http.StatusBadRequest
	case reason.SlippageExceeded, reason.ExecutionReverted:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusForbidden
	}
}

// WriteReason writes err as a problem. Denials keep their code and detail;
// anything else is an internal error.
func WriteReason(w http.ResponseWriter, r *http.Request, err error) {
	var denial *reason.Error
	if !errors.As(err, &denial) {
		WriteInternal(w, err)
		return
	}
	status := StatusOf(denial.Code)
	write(w, &ProblemDetail{
		Type:     fmt.Sprintf("https://assetguard.dev/errors/%s", denial.Code),
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   err.Error(),
		Instance: r.URL.Path,
		Code:     string(denial.Code),
	})
}
