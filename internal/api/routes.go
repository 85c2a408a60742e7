package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var nowUTC = func() time.Time { return time.Now().UTC() }

// RegisterRoutes registers the gate endpoints on rg (typically /v1).
//
//	PUT    /v1/proposals/:id                              import a proposal bundle
//	POST   /v1/proposals/:id/evaluate                     run the export gate
//	GET    /v1/proposals/:id/audit                        list audit records
//	POST   /v1/proposals/:id/checklist/automap            auto-map checklist items
//	GET    /v1/proposals/:id/checklist                    validate the checklist
//	POST   /v1/audit/:id/attest                           submit an attestation
//	POST   /v1/audit/:id/finalize                         finalize export
//	POST   /v1/sections/:id/placeholders/scan             rescan placeholders
//	POST   /v1/sections/:id/placeholders/:pid/resolve     replace a placeholder
//	POST   /v1/sections/:id/placeholders/:pid/dismiss     remove a placeholder
//	POST   /v1/sections/:id/placeholders/:pid/attest      attest a VERIFICATION_NEEDED placeholder
//	PUT    /v1/checklist/:item/mapping                    manual mapping
//	DELETE /v1/checklist/:item/mapping/:section           remove a mapping
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	proposals := rg.Group("/proposals/:id")
	proposals.PUT("", h.HandleImport)
	proposals.POST("/evaluate", h.HandleEvaluate)
	proposals.GET("/audit", h.HandleAuditList)
	proposals.POST("/checklist/automap", h.HandleAutoMap)
	proposals.GET("/checklist", h.HandleValidateChecklist)

	auditGroup := rg.Group("/audit/:id")
	auditGroup.POST("/attest", h.HandleAttest)
	auditGroup.POST("/finalize", h.HandleFinalize)

	sections := rg.Group("/sections/:id/placeholders")
	sections.POST("/scan", h.HandleScan)
	sections.POST("/:pid/resolve", h.HandleResolve)
	sections.POST("/:pid/dismiss", h.HandleDismiss)
	sections.POST("/:pid/attest", h.HandleVerify)

	checklist := rg.Group("/checklist/:item/mapping")
	checklist.PUT("", h.HandleMap)
	checklist.DELETE("/:section", h.HandleUnmap)
}

// NewRouter builds the engine with recovery, health and metrics endpoints
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	RegisterRoutes(router.Group("/v1"), h)
	return router
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down gracefully
func Serve(ctx context.Context, addr string, h *Handlers, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
