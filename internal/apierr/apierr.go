// Package apierr implements the registered error-code system every
// component below the HTTP layer raises errors through, and the HTTP
// layer (internal/api) maps straight onto status codes. Adapted from
// the teacher's registry/api/errcode package: a Code carries a fixed
// HTTP status, and constructors build an *Error any component can
// return without importing net/http.
package apierr

import (
	"fmt"
	"net/http"
)

// Code is a registered error code with a fixed HTTP status.
type Code struct {
	Value          string
	HTTPStatusCode int
}

// Error is the concrete error type every component returns. Err is
// the human-readable detail (serialized as "error"); Issues carries structured validation
// detail (used by gate-graph validation, §6).
type Error struct {
	Code   Code    `json:"-"`
	Err    string  `json:"error"`
	Issues []Issue `json:"issues,omitempty"`
}

// Issue is one structured validation failure, as emitted by gate-graph
// validation.
type Issue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Gate     string `json:"gate,omitempty"`
	Upstream string `json:"upstream,omitempty"`
}

func (e *Error) Error() string { return e.Err }

// HTTPStatus returns the status code to serve for e.
func (e *Error) HTTPStatus() int {
	if e.Code.HTTPStatusCode == 0 {
		return http.StatusInternalServerError
	}
	return e.Code.HTTPStatusCode
}

var (
	// CodeValidation covers malformed input, unknown scope/gate, bad GC
	// flag combinations, gate-graph validation.
	CodeValidation = Code{"VALIDATION", http.StatusBadRequest}
	// CodeUnauthorized covers missing/revoked/expired bearer tokens.
	CodeUnauthorized = Code{"UNAUTHORIZED", http.StatusUnauthorized}
	// CodeForbidden covers insufficient ACL / non-admin attempting an
	// admin-only action.
	CodeForbidden = Code{"FORBIDDEN", http.StatusForbidden}
	// CodeNotFound covers unknown repo/bundle/release/user/token.
	CodeNotFound = Code{"NOT_FOUND", http.StatusNotFound}
	// CodeConflict covers a non-promotable bundle at promotion time and
	// duplicate snap publications.
	CodeConflict = Code{"CONFLICT", http.StatusConflict}
	// CodeIntegrity covers hash mismatches and corrupt persisted JSON.
	CodeIntegrity = Code{"INTEGRITY", http.StatusInternalServerError}
	// CodeInternal covers disk I/O and other unclassified failures.
	CodeInternal = Code{"INTERNAL", http.StatusInternalServerError}
)

// Validation builds a 400 with message built from format/args.
func Validation(format string, args ...any) *Error { return newf(CodeValidation, format, args...) }

// Unauthorized builds a 401.
func Unauthorized(format string, args ...any) *Error { return newf(CodeUnauthorized, format, args...) }

// Forbidden builds a 403.
func Forbidden(format string, args ...any) *Error { return newf(CodeForbidden, format, args...) }

// NotFound builds a 404.
func NotFound(format string, args ...any) *Error { return newf(CodeNotFound, format, args...) }

// Conflict builds a 409.
func Conflict(format string, args ...any) *Error { return newf(CodeConflict, format, args...) }

// Integrity builds a 500 tagged as an integrity failure (callers should
// log these; they indicate on-disk corruption or a hash mismatch).
func Integrity(format string, args ...any) *Error { return newf(CodeIntegrity, format, args...) }

// Internal wraps an unclassified error (disk I/O, marshal failure) as a 500.
func Internal(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: CodeInternal, Err: err.Error()}
}

// WithIssues attaches structured validation issues (gate-graph errors).
func (e *Error) WithIssues(issues ...Issue) *Error {
	e.Issues = issues
	return e
}

func newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Sprintf(format, args...)}
}
