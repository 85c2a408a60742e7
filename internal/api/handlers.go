// Package api exposes the export gate over HTTP.
//
// Policy outcomes (BLOCK, WARN, ALLOW) are 200 responses. Conflicts are 409,
// unknown ids 404, malformed input 400 or 422, and infrastructure failures
// 503 so callers know to retry.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/proposalgate/internal/gate"
	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/pipeline"
	"github.com/ppiankov/proposalgate/internal/placeholder"
	"github.com/ppiankov/proposalgate/internal/store"
)

const maxBundleBytes = 8 << 20

// Handlers serves the gate endpoints
type Handlers struct {
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

// NewHandlers creates handlers over a wired pipeline
func NewHandlers(p *pipeline.Pipeline, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{pipeline: p, logger: logger}
}

// requestLogger returns a logger tagged with the request id, creating one if needed
func (h *Handlers) requestLogger(c *gin.Context, handler string) *zap.Logger {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return h.logger.With(zap.String("request_id", requestID), zap.String("handler", handler))
}

// statusFor maps an error to its HTTP status and error code
func statusFor(err error) (int, string) {
	switch {
	case gate.IsInfrastructure(err):
		return http.StatusServiceUnavailable, "INFRASTRUCTURE"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, gate.ErrAttestationMismatch):
		return http.StatusBadRequest, "ATTESTATION_MISMATCH"
	case errors.Is(err, gate.ErrStaleDecision):
		return http.StatusConflict, "STALE_DECISION"
	case errors.Is(err, gate.ErrNotExportable):
		return http.StatusConflict, "NOT_EXPORTABLE"
	case errors.Is(err, store.ErrSectionLocked):
		return http.StatusConflict, "SECTION_LOCKED"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, placeholder.ErrInvalidOperation):
		return http.StatusUnprocessableEntity, "INVALID_OPERATION"
	case errors.Is(err, placeholder.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func (h *Handlers) fail(c *gin.Context, logger *zap.Logger, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("code", code), zap.Error(err))
	} else {
		logger.Info("request rejected", zap.String("code", code), zap.Error(err))
	}
	c.JSON(status, ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		Retryable: status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout,
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: err.Error(),
		Code:  "INVALID_REQUEST",
	})
}

// HandleHealth handles GET /healthz
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: pipeline.Version,
		LLM:     h.pipeline.Narrator().ProviderName(),
	})
}

// HandleImport handles PUT /v1/proposals/:id with a YAML or JSON bundle body
func (h *Handlers) HandleImport(c *gin.Context) {
	logger := h.requestLogger(c, "HandleImport")

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBundleBytes))
	if err != nil {
		badRequest(c, err)
		return
	}
	bundle, err := pipeline.ParseBundle(data)
	if err != nil {
		badRequest(c, err)
		return
	}
	if bundle.Proposal.ID != c.Param("id") {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "proposal.id does not match the URL",
			Code:  "ID_MISMATCH",
		})
		return
	}

	if err := pipeline.Import(c.Request.Context(), h.pipeline.Store(), bundle, nowUTC()); err != nil {
		h.fail(c, logger, err)
		return
	}
	logger.Info("bundle imported", zap.String("proposal_id", bundle.Proposal.ID))
	c.JSON(http.StatusOK, bundle.Proposal)
}

// HandleEvaluate handles POST /v1/proposals/:id/evaluate.
//
// Response:
//
//	200 OK: pipeline.Report (decision may be BLOCK, WARN or ALLOW)
//	400 Bad Request: validation error
//	503 Service Unavailable: store or audit log failure, retry
func (h *Handlers) HandleEvaluate(c *gin.Context) {
	logger := h.requestLogger(c, "HandleEvaluate")

	var body EvaluateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	req := model.EvaluateRequest{
		ProposalID:   c.Param("id"),
		UserID:       body.UserID,
		ExportFormat: body.ExportFormat,
	}
	report, err := h.pipeline.Evaluate(c.Request.Context(), req, body.Explain)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// HandleAuditList handles GET /v1/proposals/:id/audit
func (h *Handlers) HandleAuditList(c *gin.Context) {
	logger := h.requestLogger(c, "HandleAuditList")

	records, err := h.pipeline.Store().ListAudit(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	if records == nil {
		records = []model.AuditRecord{}
	}
	c.JSON(http.StatusOK, AuditListResponse{Records: records})
}

// HandleAttest handles POST /v1/audit/:id/attest
func (h *Handlers) HandleAttest(c *gin.Context) {
	logger := h.requestLogger(c, "HandleAttest")

	var body AttestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	rec, err := h.pipeline.Gate().SubmitAttestation(c.Request.Context(), c.Param("id"), body.Text)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HandleFinalize handles POST /v1/audit/:id/finalize
func (h *Handlers) HandleFinalize(c *gin.Context) {
	logger := h.requestLogger(c, "HandleFinalize")

	rec, err := h.pipeline.Gate().Finalize(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HandleScan handles POST /v1/sections/:id/placeholders/scan
func (h *Handlers) HandleScan(c *gin.Context) {
	logger := h.requestLogger(c, "HandleScan")

	summary, err := h.pipeline.Gate().Placeholders().ScanAndPersist(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// HandleResolve handles POST /v1/sections/:id/placeholders/:pid/resolve
func (h *Handlers) HandleResolve(c *gin.Context) {
	logger := h.requestLogger(c, "HandleResolve")

	var body ResolveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	summary, err := h.pipeline.Gate().Placeholders().Resolve(c.Request.Context(), c.Param("id"), c.Param("pid"), body.Value)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// HandleDismiss handles POST /v1/sections/:id/placeholders/:pid/dismiss
func (h *Handlers) HandleDismiss(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDismiss")

	summary, err := h.pipeline.Gate().Placeholders().Dismiss(c.Request.Context(), c.Param("id"), c.Param("pid"))
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// HandleVerify handles POST /v1/sections/:id/placeholders/:pid/attest
func (h *Handlers) HandleVerify(c *gin.Context) {
	logger := h.requestLogger(c, "HandleVerify")

	var body VerificationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	a, err := h.pipeline.Gate().AttestVerification(c.Request.Context(), c.Param("id"), c.Param("pid"), body.UserID, body.Statement)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// HandleAutoMap handles POST /v1/proposals/:id/checklist/automap
func (h *Handlers) HandleAutoMap(c *gin.Context) {
	logger := h.requestLogger(c, "HandleAutoMap")

	created, err := h.pipeline.Gate().Mapper().AutoMap(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	if created == nil {
		created = []model.SectionMapping{}
	}
	c.JSON(http.StatusOK, AutoMapResponse{Created: created})
}

// HandleValidateChecklist handles GET /v1/proposals/:id/checklist
func (h *Handlers) HandleValidateChecklist(c *gin.Context) {
	logger := h.requestLogger(c, "HandleValidateChecklist")

	v, err := h.pipeline.Gate().Mapper().Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// HandleMap handles PUT /v1/checklist/:item/mapping
func (h *Handlers) HandleMap(c *gin.Context) {
	logger := h.requestLogger(c, "HandleMap")

	var body MapBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.pipeline.Gate().Mapper().ManualMap(c.Request.Context(), c.Param("item"), body.SectionID); err != nil {
		h.fail(c, logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleUnmap handles DELETE /v1/checklist/:item/mapping/:section
func (h *Handlers) HandleUnmap(c *gin.Context) {
	logger := h.requestLogger(c, "HandleUnmap")

	if err := h.pipeline.Gate().Mapper().Unmap(c.Request.Context(), c.Param("item"), c.Param("section")); err != nil {
		h.fail(c, logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
