package api

import (
	"github.com/ppiankov/proposalgate/internal/model"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code"`

	// Retryable is set for infrastructure failures.
	Retryable bool `json:"retryable,omitempty"`
}

// EvaluateBody is the body of POST /v1/proposals/:id/evaluate
type EvaluateBody struct {
	UserID       string `json:"user_id" binding:"required"`
	ExportFormat string `json:"export_format" binding:"required"`
	Explain      bool   `json:"explain"`
}

// AttestBody is the body of POST /v1/audit/:id/attest
type AttestBody struct {
	Text string `json:"text" binding:"required"`
}

// ResolveBody is the body of POST .../placeholders/:pid/resolve
type ResolveBody struct {
	Value string `json:"value" binding:"required"`
}

// VerificationBody is the body of POST .../placeholders/:pid/attest
type VerificationBody struct {
	UserID    string `json:"user_id" binding:"required"`
	Statement string `json:"statement" binding:"required"`
}

// MapBody is the body of PUT /v1/checklist/:item/mapping
type MapBody struct {
	SectionID string `json:"section_id" binding:"required"`
}

// AutoMapResponse lists the mappings one auto-map pass created
type AutoMapResponse struct {
	Created []model.SectionMapping `json:"created"`
}

// AuditListResponse lists a proposal's audit records oldest first
type AuditListResponse struct {
	Records []model.AuditRecord `json:"records"`
}

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	LLM     string `json:"llm,omitempty"`
}
