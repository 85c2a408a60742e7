package retrieval

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/worker"
)

// New builds the configured backend wrapped as memo(resilient(limited(backend)))
func New(cfg model.RetrievalConfig, logger *zap.Logger) (Retriever, error) {
	var backend Retriever

	switch strings.ToLower(cfg.Backend) {
	case "weaviate":
		w, err := NewWeaviateRetriever(cfg.URL, cfg.APIKey, cfg.Class, logger)
		if err != nil {
			return nil, err
		}
		backend = w

	case "none", "":
		backend = Empty{}

	default:
		return nil, fmt.Errorf("unknown retrieval backend: %s (supported: weaviate, none)", cfg.Backend)
	}

	limited := NewLimited(backend, worker.NewLimiter(cfg.RequestsPerSecond, cfg.Burst))
	resilient := NewResilient(limited, cfg.Timeout, cfg.Retries)
	return NewMemo(resilient, cfg.MemoTTL), nil
}
