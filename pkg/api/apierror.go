// Package api serves the screening pipeline over HTTP: analysis,
// bulk analysis, evidence export, policy authority control, and health.
// Error responses use RFC 7807 Problem Details.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	problem := &ProblemDetail{
		Type:   fmt.Sprintf("about:blank#%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// WriteMethodNotAllowed writes a 405 error response naming the
// rejected method.
func WriteMethodNotAllowed(w http.ResponseWriter, method string) {
	WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed",
		fmt.Sprintf("method %s is not allowed on this resource", method))
}

// WriteTooManyRequests writes a 429 with a Retry-After hint.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded")
}

// WriteInternal writes a 500 error response.
func WriteInternal(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", detail)
}
