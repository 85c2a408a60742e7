package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/proposalgate/internal/gate"
	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/pipeline"
	"github.com/ppiankov/proposalgate/internal/retrieval"
	"github.com/ppiankov/proposalgate/internal/store"
)

func init() {
	// Set Gin to test mode to reduce noise
	gin.SetMode(gin.TestMode)
}

const bundle = `
proposal:
  id: p1
  organization_id: org1
sections:
  - id: s1
    name: Executive Summary
    content: We serve students across the county.
  - id: s2
    name: Budget
    content: "Total budget [[PLACEHOLDER:MISSING_DATA:Total budget:b1]]. Partner [[PLACEHOLDER:USER_INPUT_REQUIRED:Partner name:u1]]."
checklist:
  - id: c1
    name: Summary
    is_required: true
  - id: c2
    name: Budget
    is_required: true
`

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Storage.Driver = "memory"
	p := pipeline.New(cfg, store.NewMemoryStore(), retrieval.Empty{}, nil)
	t.Cleanup(func() { _ = p.Close() })
	return NewRouter(NewHandlers(p, nil))
}

func do(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func evaluate(t *testing.T, router *gin.Engine) *model.GateResult {
	t.Helper()
	w := do(t, router, http.MethodPost, "/v1/proposals/p1/evaluate", EvaluateBody{UserID: "u1", ExportFormat: "pdf"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[pipeline.Report](t, w).Result
}

func TestHandlers_HandleHealth(t *testing.T) {
	router := setupTestRouter(t)

	w := do(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, pipeline.Version, resp.Version)
	assert.Empty(t, resp.LLM)

	w = do(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandlers_ExportFlow(t *testing.T) {
	router := setupTestRouter(t)

	w := do(t, router, http.MethodPut, "/v1/proposals/p1", bundle)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// placeholders block
	result := evaluate(t, router)
	assert.Equal(t, model.DecisionBlock, result.Decision)
	require.NotEmpty(t, result.Blocks)
	assert.Equal(t, model.RuleBlockingPlaceholder, result.Blocks[0].RuleID)

	w = do(t, router, http.MethodPost, "/v1/audit/"+result.AuditRecordID+"/finalize", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NOT_EXPORTABLE", decode[ErrorResponse](t, w).Code)

	// MISSING_DATA cannot be dismissed
	w = do(t, router, http.MethodPost, "/v1/sections/s2/placeholders/b1/dismiss", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, router, http.MethodPost, "/v1/sections/s2/placeholders/u1/dismiss", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/v1/sections/s2/placeholders/b1/resolve", ResolveBody{Value: "$50,000"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[model.PlaceholderSummary](t, w)
	assert.Zero(t, summary.Blocking)

	// unverified currency claim needs attestation
	result = evaluate(t, router)
	assert.Equal(t, model.DecisionWarn, result.Decision)
	assert.Equal(t, model.StateWarnNeedsAttestation, result.State)
	require.True(t, result.AttestationRequired)

	w = do(t, router, http.MethodPost, "/v1/audit/"+result.AuditRecordID+"/attest", AttestBody{Text: "I agree"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ATTESTATION_MISMATCH", decode[ErrorResponse](t, w).Code)

	w = do(t, router, http.MethodPost, "/v1/audit/"+result.AuditRecordID+"/attest", AttestBody{Text: result.AttestationText})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.StateWarnAcknowledged, decode[model.AuditRecord](t, w).State)

	// second submission loses
	w = do(t, router, http.MethodPost, "/v1/audit/"+result.AuditRecordID+"/attest", AttestBody{Text: result.AttestationText})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodPost, "/v1/audit/"+result.AuditRecordID+"/finalize", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, decode[model.AuditRecord](t, w).FinalizedAt)

	// exported sections are immutable
	w = do(t, router, http.MethodPost, "/v1/sections/s1/placeholders/x1/resolve", ResolveBody{Value: "v"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SECTION_LOCKED", decode[ErrorResponse](t, w).Code)

	w = do(t, router, http.MethodGet, "/v1/proposals/p1/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[AuditListResponse](t, w).Records, 2)
}

func TestHandlers_Checklist(t *testing.T) {
	router := setupTestRouter(t)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPut, "/v1/proposals/p1", bundle).Code)

	w := do(t, router, http.MethodPost, "/v1/proposals/p1/checklist/automap", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[AutoMapResponse](t, w).Created, 2)

	w = do(t, router, http.MethodPost, "/v1/proposals/p1/checklist/automap", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[AutoMapResponse](t, w).Created)

	w = do(t, router, http.MethodDelete, "/v1/checklist/c1/mapping/s1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodGet, "/v1/proposals/p1/checklist", nil)
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[model.ChecklistValidation](t, w)
	assert.Equal(t, []string{"Summary"}, v.MissingRequired)

	w = do(t, router, http.MethodPut, "/v1/checklist/c1/mapping", MapBody{SectionID: "s1"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodPut, "/v1/checklist/c1/mapping", MapBody{SectionID: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodGet, "/v1/proposals/p1/checklist", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[model.ChecklistValidation](t, w).MissingRequired)
}

func TestHandlers_Errors(t *testing.T) {
	router := setupTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"evaluate without user", http.MethodPost, "/v1/proposals/p1/evaluate", map[string]string{"export_format": "pdf"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"evaluate unknown proposal", http.MethodPost, "/v1/proposals/nope/evaluate", EvaluateBody{UserID: "u1", ExportFormat: "pdf"}, http.StatusNotFound, "NOT_FOUND"},
		{"attest unknown record", http.MethodPost, "/v1/audit/nope/attest", AttestBody{Text: "x"}, http.StatusNotFound, "NOT_FOUND"},
		{"finalize unknown record", http.MethodPost, "/v1/audit/nope/finalize", nil, http.StatusNotFound, "NOT_FOUND"},
		{"resolve unknown section", http.MethodPost, "/v1/sections/nope/placeholders/x/resolve", ResolveBody{Value: "v"}, http.StatusNotFound, "NOT_FOUND"},
		{"import id mismatch", http.MethodPut, "/v1/proposals/other", bundle, http.StatusBadRequest, "ID_MISMATCH"},
		{"import garbage", http.MethodPut, "/v1/proposals/p1", "proposal: [", http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.status == http.StatusServiceUnavailable, resp.Retryable)
		})
	}
}

func TestHandlers_VerificationAttestation(t *testing.T) {
	router := setupTestRouter(t)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPut, "/v1/proposals/p1", bundle).Code)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/v1/sections/s2/placeholders/scan", nil).Code)

	w := do(t, router, http.MethodPost, "/v1/sections/s2/placeholders/b1/attest", VerificationBody{UserID: "u1", Statement: "checked"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, router, http.MethodPost, "/v1/sections/s2/placeholders/zz/attest", VerificationBody{UserID: "u1", Statement: "checked"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor_Default(t *testing.T) {
	status, code := statusFor(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL", code)

	status, code = statusFor(&gate.InfrastructureError{Op: "read proposal", Err: assert.AnError})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "INFRASTRUCTURE", code)
}
