// Package errors provides typed abort codes for the exchange core and their
// rendering as RFC 7807 Problem Details at the API boundary.
package errors

import (
	"encoding/json"
	"net/http"
)

// Problem type URIs
const (
	TypeValidationError = "https://api.pincex.io/problems/validation-error"
	TypeUnauthorized    = "https://api.pincex.io/problems/unauthorized"
	TypeForbidden       = "https://api.pincex.io/problems/forbidden"
	TypeNotFound        = "https://api.pincex.io/problems/not-found"
	TypeCapacity        = "https://api.pincex.io/problems/book-capacity"
	TypeInvariant       = "https://api.pincex.io/problems/ledger-invariant"
	TypeInternalError   = "https://api.pincex.io/problems/internal-error"
	TypeUnavailable     = "https://api.pincex.io/problems/service-unavailable"
)

// Problem titles
const (
	TitleValidationError = "Validation Error"
	TitleUnauthorized    = "Unauthorized"
	TitleForbidden       = "Forbidden"
	TitleNotFound        = "Not Found"
	TitleCapacity        = "Order Book Capacity"
	TitleInvariant       = "Ledger Invariant Violated"
	TitleInternalError   = "Internal Server Error"
	TitleUnavailable     = "Service Unavailable"
)

// ValidationError represents a validation error for RFC 7807
type ValidationError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	TraceID  string                 `json:"trace_id,omitempty"`
	Errors   []ValidationError      `json:"errors,omitempty"`
	Extra    map[string]interface{} `json:"-"`
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return p.Detail
}

// WithTraceID adds a trace ID to the problem details
func (p *ProblemDetails) WithTraceID(traceID string) *ProblemDetails {
	p.TraceID = traceID
	return p
}

// WithValidationErrors adds validation errors to the problem details
func (p *ProblemDetails) WithValidationErrors(errors []ValidationError) *ProblemDetails {
	p.Errors = errors
	return p
}

// WithExtra adds extra fields to the problem details (they will be serialized at the top level)
func (p *ProblemDetails) WithExtra(key string, value interface{}) *ProblemDetails {
	if p.Extra == nil {
		p.Extra = make(map[string]interface{})
	}
	p.Extra[key] = value
	return p
}

// MarshalJSON implements custom JSON marshaling to include extra fields at the top level
func (p *ProblemDetails) MarshalJSON() ([]byte, error) {
	result := make(map[string]interface{})
	result["type"] = p.Type
	result["title"] = p.Title
	result["status"] = p.Status
	if p.Detail != "" {
		result["detail"] = p.Detail
	}
	if p.Instance != "" {
		result["instance"] = p.Instance
	}
	if p.TraceID != "" {
		result["trace_id"] = p.TraceID
	}
	if len(p.Errors) > 0 {
		result["errors"] = p.Errors
	}
	for k, v := range p.Extra {
		result[k] = v
	}
	return json.Marshal(result)
}

// NewProblemDetails creates a generic problem details with all fields
func NewProblemDetails(problemType, title string, status int, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:     problemType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// NewValidationError creates a validation error problem
func NewValidationError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeValidationError, TitleValidationError, http.StatusBadRequest, detail, instance)
}

// NewUnauthorizedError creates an unauthorized error problem
func NewUnauthorizedError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeUnauthorized, TitleUnauthorized, http.StatusUnauthorized, detail, instance)
}

// NewForbiddenError creates a forbidden error problem
func NewForbiddenError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeForbidden, TitleForbidden, http.StatusForbidden, detail, instance)
}

// NewNotFoundError creates a not found error problem
func NewNotFoundError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeNotFound, TitleNotFound, http.StatusNotFound, detail, instance)
}

// NewInternalError creates an internal server error problem
func NewInternalError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeInternalError, TitleInternalError, http.StatusInternalServerError, detail, instance)
}

// NewServiceUnavailableError creates a service unavailable problem
func NewServiceUnavailableError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeUnavailable, TitleUnavailable, http.StatusServiceUnavailable, detail, instance)
}

// FromError converts an error returned by the exchange into problem details.
// Abort codes keep their module and numeric code as top-level extras so
// clients can switch on them.
func FromError(err error, instance string) *ProblemDetails {
	a, ok := AbortOf(err)
	if !ok {
		return NewInternalError(err.Error(), instance)
	}

	var p *ProblemDetails
	switch a.Class {
	case ClassValidation:
		p = NewValidationError(err.Error(), instance)
	case ClassNotFound:
		p = NewNotFoundError(err.Error(), instance)
	case ClassCapacity:
		p = NewProblemDetails(TypeCapacity, TitleCapacity, http.StatusConflict, err.Error(), instance)
	default:
		p = NewProblemDetails(TypeInvariant, TitleInvariant, http.StatusUnprocessableEntity, err.Error(), instance)
	}
	return p.WithExtra("module", a.Module).
		WithExtra("code", a.Code).
		WithExtra("abort", a.Name)
}
